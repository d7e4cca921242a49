package ussd

import (
	"strconv"
	"sync"
)

const (
	ScreenRoot         ScreenID = "root"
	ScreenLossCrop     ScreenID = "loss_crop"
	ScreenLossQuantity ScreenID = "loss_quantity"
	ScreenLossLocation ScreenID = "loss_location"
	ScreenLossStorage  ScreenID = "loss_storage"
	ScreenLossWeather  ScreenID = "loss_weather"
	ScreenPriceCrop    ScreenID = "price_crop"
	ScreenBuyerCrop    ScreenID = "buyer_crop"
	ScreenAdviceTopic  ScreenID = "advice_topic"
	ScreenRegister     ScreenID = "register"
)

// Option is one value a menu can assign to a query field.
type Option struct {
	Value string
	Label string
}

var (
	Crops = []Option{
		{"maize", "Maize"}, {"rice", "Rice"}, {"wheat", "Wheat"}, {"beans", "Beans"},
		{"tomatoes", "Tomatoes"}, {"millet", "Millet"}, {"sorghum", "Sorghum"}, {"cassava", "Cassava"},
	}
	Locations = []Option{
		{"Nairobi", "Nairobi"}, {"Mombasa", "Mombasa"}, {"Kisumu", "Kisumu"}, {"Nakuru", "Nakuru"},
		{"Eldoret", "Eldoret"}, {"Thika", "Thika"}, {"Meru", "Meru"}, {"Other", "Other"},
	}
	StorageMethods = []Option{
		{"traditional", "Traditional (open air)"},
		{"improved", "Improved (covered)"},
		{"cold_storage", "Cold storage"},
		{"silo", "Silo"},
		{"hermetic", "Hermetic bags"},
	}
	WeatherConditions = []Option{
		{"dry", "Dry"}, {"humid", "Humid"}, {"rainy", "Rainy"}, {"stormy", "Stormy"}, {"drought", "Drought"},
	}
	AdviceTopics = []Option{
		{"storage", "Post-harvest storage tips"},
		{"pests", "Pest control methods"},
		{"weather", "Weather protection"},
		{"market", "Market timing"},
		{"general", "General farming tips"},
	}
)

// AllCrops is the buyer-menu value matching every buyer.
const AllCrops = "all"

// Known reports whether value is one of the options.
func Known(options []Option, value string) bool {
	for _, o := range options {
		if o.Value == value {
			return true
		}
	}
	return false
}

// Label returns the display label for value, or value itself.
func Label(options []Option, value string) string {
	for _, o := range options {
		if o.Value == value {
			return o.Label
		}
	}
	return value
}

func numbered(options []Option, field Field, next ScreenID, action Action) []Choice {
	out := make([]Choice, 0, len(options))
	for i, o := range options {
		out = append(out, Choice{
			Key:    strconv.Itoa(i + 1),
			Label:  o.Label,
			Field:  field,
			Value:  o.Value,
			Next:   next,
			Action: action,
		})
	}
	return out
}

// DefaultScreens returns a new copy of the HarvestLink menu.
func DefaultScreens() []*Screen {
	buyerCrops := append(append([]Option{}, Crops[:5]...), Option{AllCrops, "All crops"})
	return []*Screen{
		{
			ID:     ScreenRoot,
			Prompt: "Welcome to HarvestLink",
			Choices: []Choice{
				{Key: "1", Label: "Check loss risk", Next: ScreenLossCrop},
				{Key: "2", Label: "Price forecast", Next: ScreenPriceCrop},
				{Key: "3", Label: "Find buyers", Next: ScreenBuyerCrop},
				{Key: "4", Label: "Farming advice", Next: ScreenAdviceTopic},
				{Key: "5", Label: "Register", Next: ScreenRegister},
				{Key: "0", Label: "Exit", Action: ActionExit},
			},
		},
		{ID: ScreenLossCrop, Prompt: "Select crop:", Choices: numbered(Crops, FieldCrop, ScreenLossQuantity, ""), Back: true},
		{
			ID:     ScreenLossQuantity,
			Prompt: "Enter quantity of {crop}",
			Input:  &InputSpec{Field: FieldQuantity, Hint: "(e.g. 50kg or 2 tons)", Next: ScreenLossLocation},
			Back:   true,
		},
		{ID: ScreenLossLocation, Prompt: "Select location:", Choices: numbered(Locations, FieldLocation, ScreenLossStorage, ""), Back: true},
		{ID: ScreenLossStorage, Prompt: "Storage method:", Choices: numbered(StorageMethods, FieldStorage, ScreenLossWeather, ""), Back: true},
		{ID: ScreenLossWeather, Prompt: "Current weather:", Choices: numbered(WeatherConditions, FieldWeather, "", ActionSubmit), Back: true},
		{ID: ScreenPriceCrop, Prompt: "Price forecast for:", Choices: numbered(Crops[:5], FieldCrop, "", ActionPriceForecast), Back: true},
		{ID: ScreenBuyerCrop, Prompt: "Find buyers for:", Choices: numbered(buyerCrops, FieldCrop, "", ActionFindBuyers), Back: true},
		{ID: ScreenAdviceTopic, Prompt: "Farming advice:", Choices: numbered(AdviceTopics, FieldTopic, "", ActionAdvice), Back: true},
		{
			ID:     ScreenRegister,
			Prompt: "Register with HarvestLink",
			Choices: []Choice{
				{Key: "1", Label: "Yes, register me", Action: ActionRegister},
				{Key: "2", Label: "View benefits", Action: ActionBenefits},
			},
			Back: true,
		},
	}
}

var (
	defaultOnce  sync.Once
	defaultGraph *Graph
)

// DefaultGraph returns the shared HarvestLink menu. It panics if the built-in
// screen table is inconsistent.
func DefaultGraph() *Graph {
	defaultOnce.Do(func() {
		g, err := NewGraph(ScreenRoot, DefaultScreens()...)
		if err != nil {
			panic(err)
		}
		defaultGraph = g
	})
	return defaultGraph
}
