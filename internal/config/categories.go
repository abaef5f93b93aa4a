package config

const (
	CategoryInformation = "🕯️ Information"
	CategorySettings    = "⚙️ Settings"
	CategoryMaintenance = "🛠️ Maintenance"
)

// CategoryWeights orders help sections; unknown categories sort last.
var CategoryWeights = map[string]int{
	CategoryInformation: 0,
	CategorySettings:    50,
	CategoryMaintenance: 60,
}

func CategoryWeight(category string) int {
	if w, ok := CategoryWeights[category]; ok {
		return w
	}
	return 100
}
