package detect

import "errors"

// Device errors reported by a FrameSource when the camera cannot deliver
// frames. Each maps to a distinct user-facing message.
var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrNoCamera         = errors.New("no camera device found")
	ErrCameraBusy       = errors.New("camera already in use")
	ErrInsecureContext  = errors.New("camera requires a secure context")
	ErrUnsupported      = errors.New("camera capture not supported")
)

// UserMessage classifies a device error into a human-readable explanation.
// Unknown errors get a generic device message rather than leaking internals.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "Camera access was denied. Allow camera permission and reload to continue the exam."
	case errors.Is(err, ErrNoCamera):
		return "No camera was found. Connect a camera to take a proctored exam."
	case errors.Is(err, ErrCameraBusy):
		return "The camera is in use by another application. Close it and try again."
	case errors.Is(err, ErrInsecureContext):
		return "Camera access requires a secure (HTTPS) connection."
	case errors.Is(err, ErrUnsupported):
		return "This browser does not support camera capture."
	default:
		return "The camera stopped working. Check the device and try again."
	}
}

// IsDeviceError reports whether err is one of the classified device
// conditions, as opposed to a transient per-frame failure.
func IsDeviceError(err error) bool {
	return errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrNoCamera) ||
		errors.Is(err, ErrCameraBusy) ||
		errors.Is(err, ErrInsecureContext) ||
		errors.Is(err, ErrUnsupported)
}
