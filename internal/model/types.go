package model

import "time"

// GeoPoint is a WGS84 coordinate in signed decimal degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Delivery statuses.
const (
	DeliveryPending  = "pending"
	DeliveryAssigned = "assigned"
)

// Delivery is a registered delivery job. Origin/destination and the
// delivery window are fixed at registration; status, rider and route are
// written by the planner on a successful pairing.
type Delivery struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenantId,omitempty"`
	ExternalRef string         `json:"externalRef,omitempty"`
	Origin      GeoPoint       `json:"origin"`
	Destination GeoPoint       `json:"destination"`
	WeightKg    float64        `json:"weightKg"`
	VolumeM3    float64        `json:"volumeM3"`
	WindowStart time.Time      `json:"windowStart"`
	WindowEnd   time.Time      `json:"windowEnd"`
	Status      string         `json:"status"`
	RiderID     string         `json:"riderId,omitempty"`
	Route       *RouteEstimate `json:"route,omitempty"`
}

// DeliveryIn is the registration payload for a delivery.
type DeliveryIn struct {
	ExternalRef string    `json:"externalRef,omitempty"`
	Origin      GeoPoint  `json:"origin"`
	Destination GeoPoint  `json:"destination"`
	WeightKg    float64   `json:"weightKg"`
	VolumeM3    float64   `json:"volumeM3"`
	WindowStart time.Time `json:"windowStart"`
	WindowEnd   time.Time `json:"windowEnd"`
}

// Rider is a courier that can serve deliveries. A nil Location means the
// rider's position is unknown, which excludes it from planning. Nil shift
// bounds mean the rider is always on shift.
type Rider struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenantId,omitempty"`
	Name       string     `json:"name,omitempty"`
	CapacityKg float64    `json:"capacityKg"`
	CapacityM3 float64    `json:"capacityM3"`
	Location   *GeoPoint  `json:"location,omitempty"`
	Available  bool       `json:"available"`
	ShiftStart *time.Time `json:"shiftStart,omitempty"`
	ShiftEnd   *time.Time `json:"shiftEnd,omitempty"`
}

// RiderIn is the registration payload for a rider.
type RiderIn struct {
	Name       string     `json:"name,omitempty"`
	CapacityKg float64    `json:"capacityKg"`
	CapacityM3 float64    `json:"capacityM3"`
	Location   *GeoPoint  `json:"location,omitempty"`
	Available  bool       `json:"available"`
	ShiftStart *time.Time `json:"shiftStart,omitempty"`
	ShiftEnd   *time.Time `json:"shiftEnd,omitempty"`
}

// RiderPatch updates mutable rider fields. Pointer fields distinguish
// "leave unchanged" from explicit zero values.
type RiderPatch struct {
	Available *bool     `json:"available,omitempty"`
	Location  *GeoPoint `json:"location,omitempty"`
}

// RouteEstimate is a self-contained geometric route model: straight-line
// distance scaled by a detour factor, not a road-network route.
type RouteEstimate struct {
	DistanceKm  float64    `json:"distanceKm"`
	DurationMin float64    `json:"durationMin"`
	Waypoints   []GeoPoint `json:"waypoints"`
}

// Assignment pairs one delivery with one rider for a single planning run.
type Assignment struct {
	DeliveryID string        `json:"deliveryId"`
	RiderID    string        `json:"riderId"`
	Reason     string        `json:"reason"`
	Route      RouteEstimate `json:"route"`
}

// UnassignedDelivery records a delivery no rider could serve, with the
// most actionable rejection reason.
type UnassignedDelivery struct {
	DeliveryID string `json:"deliveryId"`
	Reason     string `json:"reason"`
}

// PlanningResult is the output of one planning run. Assignments appear in
// delivery processing order.
type PlanningResult struct {
	Assignments []Assignment         `json:"assignments"`
	Unassigned  []UnassignedDelivery `json:"unassigned"`
	Message     string               `json:"message"`
}

// PlanRun is a persisted planning run for history and auditing.
type PlanRun struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenantId"`
	CreatedAt time.Time      `json:"createdAt"`
	Result    PlanningResult `json:"result"`
}

// PlanRequest triggers a planning run. Zero-valued overrides fall back to
// the server's planner defaults.
type PlanRequest struct {
	TenantID     string  `json:"tenantId,omitempty"`
	DetourFactor float64 `json:"detourFactor,omitempty"`
	AvgSpeedKmh  float64 `json:"avgSpeedKmh,omitempty"`
}

// SubscriptionRequest registers a webhook endpoint for tenant events.
type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret"`
}

// Subscription is a registered webhook endpoint.
type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}
