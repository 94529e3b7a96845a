// Package calibration owns each camera's optics and pose: the intrinsic
// matrix and distortion supplied by the operator, and the extrinsic
// rotation/translation solved from six ground markers.
//
// The marker convention is fixed: three markers on the camera's centre
// line at the safe, alert and predict radii, then three on a side line at
// the same radii, 60 degrees off centre. The side (left or right) is
// inferred from the pixel x of the first and last markers.
//
// Once solved, a Record back-projects pixels onto the z = 0 ground plane.
package calibration
