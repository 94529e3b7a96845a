// Package source adapts the vision front end to the tick loop. Front ends
// publish one JSON Frame per camera image, over UDP or recorded as JSON
// lines or a pcap capture; the Hub keeps only the newest frame per camera
// so a slow tick never works through a backlog.
package source
