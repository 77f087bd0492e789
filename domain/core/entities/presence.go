package entities

// Presence is a producer's identity inside one room. The color is fixed at
// join time.
type Presence struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Color       string `json:"color"`
}
