package models

import "strconv"

// Provider is a bookable business from the directory.
type Provider struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Phone    string   `json:"phone"` // E.164
	Address  string   `json:"address,omitempty"`
	Lat      float64  `json:"lat,omitempty"`
	Lng      float64  `json:"lng,omitempty"`
	Rating   float64  `json:"rating"` // 0..5
	Services []string `json:"services,omitempty"`
}

func (p Provider) clone() Provider {
	out := p
	if p.Services != nil {
		out.Services = append([]string(nil), p.Services...)
	}
	return out
}

func cloneProviders(ps []Provider) []Provider {
	if ps == nil {
		return nil
	}
	out := make([]Provider, len(ps))
	for i := range ps {
		out[i] = ps[i].clone()
	}
	return out
}

func formatLatLng(lat, lng float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lng, 'f', -1, 64)
}
