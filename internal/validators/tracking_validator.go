package validators

import (
	"time"
)

type StartTrackingRequest struct {
	AssignmentID string `json:"assignment_id" validate:"required,max=64"`
}

type LocationSampleRequest struct {
	Latitude  float64    `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64    `json:"longitude" validate:"min=-180,max=180"`
	Accuracy  float64    `json:"accuracy" validate:"gte=0"`
	Timestamp *time.Time `json:"timestamp" validate:"omitempty"`
}

type RegisterDeviceRequest struct {
	Platform string `json:"platform" validate:"required,oneof=ios android"`
	Token    string `json:"token" validate:"required,max=4096"`
	Phone    string `json:"phone" validate:"omitempty,phone_number"`
}
