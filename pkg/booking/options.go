package booking

// PricedOption is a catalog entry priced in CatalogCurrency.
type PricedOption struct {
	Name    string
	Base    Money
	PerUnit Money
}

// ChoiceField is an enumerated service parameter and the value used when it
// is omitted.
type ChoiceField struct {
	Name    string
	Choices []string
	Default string
}

// ServiceOptions lists what a client may send for one service type.
type ServiceOptions struct {
	ServiceType   ServiceType
	CategoryField string
	Categories    []PricedOption
	QuantityField string
	Rooms         []string
	MaxQuantity   int
	Choices       []ChoiceField
	AddOns        []PricedOption
}

// Catalog describes every bookable service in a stable order.
func Catalog() []ServiceOptions {
	rooms := sortedKeys(roomTypes)
	return []ServiceOptions{
		{
			ServiceType:   ServiceCleaning,
			CategoryField: "category",
			Categories:    pricedCards(cleaningCategories),
			QuantityField: "rooms",
			Rooms:         rooms,
			MaxQuantity:   maxQuantity,
			Choices: []ChoiceField{
				choiceField("package", cleaningPackages, defaultCleaningPackage),
				choiceField("homeSize", homeSizes, defaultHomeSize),
				choiceField("frequency", frequencyDiscounts, defaultFrequency),
			},
		},
		{
			ServiceType:   ServiceLaundry,
			CategoryField: "category",
			Categories:    pricedCards(laundryCategories),
			QuantityField: "itemCount",
			MaxQuantity:   maxQuantity,
			Choices:       []ChoiceField{choiceField("service", laundryTiers, defaultLaundryTier)},
		},
		{
			ServiceType:   ServiceMoveOut,
			CategoryField: "category",
			Categories:    pricedCards(moveOutCategories),
			QuantityField: "rooms",
			Rooms:         rooms,
			MaxQuantity:   maxQuantity,
			Choices:       []ChoiceField{choiceField("propertySize", propertySizes, defaultPropertySize)},
			AddOns:        pricedAddOns(moveOutAddOns),
		},
		{
			ServiceType:   ServiceRepairs,
			CategoryField: "repairType",
			Categories:    pricedCards(repairCategories),
			QuantityField: "units",
			MaxQuantity:   maxQuantity,
			Choices:       []ChoiceField{choiceField("urgency", repairUrgencies, defaultUrgency)},
		},
		{
			ServiceType:   ServiceGardening,
			CategoryField: "category",
			Categories:    pricedCards(gardeningCategories),
			QuantityField: "areas",
			MaxQuantity:   maxQuantity,
			Choices: []ChoiceField{
				choiceField("gardenSize", gardenSizes, defaultGardenSize),
				choiceField("frequency", frequencyDiscounts, defaultFrequency),
			},
		},
	}
}

func catalogMoney(minorUnits int64) Money {
	return Money{minorUnits: minorUnits, currency: CatalogCurrency}
}

func pricedCards(table map[string]rateCard) []PricedOption {
	options := make([]PricedOption, 0, len(table))
	for _, name := range sortedKeys(table) {
		card := table[name]
		options = append(options, PricedOption{Name: name, Base: catalogMoney(card.baseMinor), PerUnit: catalogMoney(card.perUnitMinor)})
	}
	return options
}

func pricedAddOns(table map[string]int64) []PricedOption {
	options := make([]PricedOption, 0, len(table))
	for _, name := range sortedKeys(table) {
		options = append(options, PricedOption{Name: name, Base: catalogMoney(table[name])})
	}
	return options
}

func choiceField[V any](name string, table map[string]V, fallback string) ChoiceField {
	return ChoiceField{Name: name, Choices: sortedKeys(table), Default: fallback}
}
