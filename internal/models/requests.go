package models

// RaiseAlertRequest carries a new distress position. Raising while an
// alert is already active appends to its trail instead of opening a
// second one.
type RaiseAlertRequest struct {
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
}

type SendMessageRequest struct {
	Type     MessageType `json:"type"`
	Content  string      `json:"content"`
	MediaURL string      `json:"media_url"`
}

type RegisterDeviceRequest struct {
	Token    string `json:"token" validate:"required"`
	Platform string `json:"platform" validate:"required,oneof=ios android"`
}

type NearbyAlertsRequest struct {
	Latitude  float64 `json:"latitude" form:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" form:"longitude" validate:"longitude"`
	RadiusKM  float64 `json:"radius_km" form:"radius_km" validate:"min=0,max=100"`
}
