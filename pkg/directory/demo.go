package directory

import (
	"context"
	"strings"

	"github.com/callpilot/callpilot/pkg/models"
)

// demoProviders is the built-in dataset used without a Places API key.
// Ratings and coordinates are fabricated but stable.
var demoProviders = []models.Provider{
	{ID: "demo-dent-001", Name: "Bright Smile Dental", Phone: "+14155550101", Address: "210 Post St, San Francisco, CA", Lat: 37.7888, Lng: -122.4069, Rating: 4.7, Services: []string{"dentist", "dental cleaning", "orthodontics"}},
	{ID: "demo-dent-002", Name: "Mission Bay Dentistry", Phone: "+14155550102", Address: "601 4th St, San Francisco, CA", Lat: 37.7793, Lng: -122.3937, Rating: 4.4, Services: []string{"dentist", "dental cleaning"}},
	{ID: "demo-dent-003", Name: "Golden Gate Dental Group", Phone: "+14155550103", Address: "1825 Divisadero St, San Francisco, CA", Lat: 37.7867, Lng: -122.4397, Rating: 4.9, Services: []string{"dentist", "root canal", "dental implants"}},
	{ID: "demo-dent-004", Name: "Sunset Family Dental", Phone: "+14155550104", Address: "1300 Noriega St, San Francisco, CA", Lat: 37.7541, Lng: -122.4776, Rating: 4.1, Services: []string{"dentist", "pediatric dentist"}},
	{ID: "demo-dent-005", Name: "Embarcadero Dental Care", Phone: "+14155550105", Address: "4 Embarcadero Center, San Francisco, CA", Lat: 37.7952, Lng: -122.3996, Rating: 4.5, Services: []string{"dentist", "teeth whitening"}},
	{ID: "demo-derm-001", Name: "Pacific Dermatology", Phone: "+14155550201", Address: "2100 Webster St, San Francisco, CA", Lat: 37.7907, Lng: -122.4331, Rating: 4.6, Services: []string{"dermatologist", "skin check"}},
	{ID: "demo-derm-002", Name: "Marina Skin Clinic", Phone: "+14155550202", Address: "3300 Fillmore St, San Francisco, CA", Lat: 37.8005, Lng: -122.4358, Rating: 4.2, Services: []string{"dermatologist", "acne treatment"}},
	{ID: "demo-physio-001", Name: "Bay Area Physiotherapy", Phone: "+14155550301", Address: "450 Sutter St, San Francisco, CA", Lat: 37.7895, Lng: -122.4078, Rating: 4.8, Services: []string{"physiotherapy", "sports rehab"}},
	{ID: "demo-physio-002", Name: "SoMa Physical Therapy", Phone: "+14155550302", Address: "660 Harrison St, San Francisco, CA", Lat: 37.7836, Lng: -122.3942, Rating: 4.3, Services: []string{"physiotherapy", "back pain"}},
	{ID: "demo-gp-001", Name: "Castro Family Medicine", Phone: "+14155550401", Address: "4122 18th St, San Francisco, CA", Lat: 37.7609, Lng: -122.4350, Rating: 4.5, Services: []string{"doctor", "general practitioner", "checkup"}},
	{ID: "demo-gp-002", Name: "Richmond Medical Group", Phone: "+14155550402", Address: "5200 Geary Blvd, San Francisco, CA", Lat: 37.7806, Lng: -122.4759, Rating: 4.0, Services: []string{"doctor", "general practitioner"}},
	{ID: "demo-vet-001", Name: "North Beach Veterinary", Phone: "+14155550501", Address: "1452 Grant Ave, San Francisco, CA", Lat: 37.7997, Lng: -122.4076, Rating: 4.7, Services: []string{"veterinarian", "pet vaccination"}},
}

// DemoDirectory serves the built-in dataset. Matching is a case-insensitive
// substring test against each provider's service list.
type DemoDirectory struct {
	registry  *Registry
	providers []models.Provider
}

// NewDemoDirectory builds the demo variant backed by registry.
func NewDemoDirectory(registry *Registry) *DemoDirectory {
	if registry == nil {
		panic("directory.NewDemoDirectory: registry is required")
	}
	return &DemoDirectory{registry: registry, providers: demoProviders}
}

func (d *DemoDirectory) Search(_ context.Context, service, _ string, _, _ *float64) ([]models.Provider, error) {
	needle := strings.ToLower(strings.TrimSpace(service))
	var out []models.Provider
	for _, p := range d.providers {
		for _, s := range p.Services {
			if strings.Contains(strings.ToLower(s), needle) {
				out = append(out, p)
				break
			}
		}
	}
	d.registry.Put(out...)
	return out, nil
}
