package booking

import (
	"encoding/json"
	"testing"
)

func TestCatalogListsEveryServiceType(test *testing.T) {
	test.Parallel()
	catalog := Catalog()
	expected := []ServiceType{ServiceCleaning, ServiceLaundry, ServiceMoveOut, ServiceRepairs, ServiceGardening}
	if len(catalog) != len(expected) {
		test.Fatalf("expected %d services, got %d", len(expected), len(catalog))
	}
	for index, options := range catalog {
		if options.ServiceType != expected[index] {
			test.Fatalf("service %d: expected %s, got %s", index, expected[index], options.ServiceType)
		}
		if len(options.Categories) == 0 || options.MaxQuantity != maxQuantity {
			test.Fatalf("incomplete options for %s: %+v", options.ServiceType, options)
		}
		for position := 1; position < len(options.Categories); position++ {
			if options.Categories[position-1].Name >= options.Categories[position].Name {
				test.Fatalf("categories of %s are not sorted: %+v", options.ServiceType, options.Categories)
			}
		}
	}
	standard := catalog[0].Categories[len(catalog[0].Categories)-1]
	if standard.Name != "standard" || standard.Base.MinorUnits() != 800_000 || standard.PerUnit.MinorUnits() != 120_000 {
		test.Fatalf("unexpected standard cleaning card: %+v", standard)
	}
}

// Every advertised category and choice must be accepted by the pricer.
func TestCatalogEntriesArePriceable(test *testing.T) {
	test.Parallel()
	for _, options := range Catalog() {
		for _, category := range options.Categories {
			fields := map[string]any{options.CategoryField: category.Name}
			if options.Rooms != nil {
				fields[options.QuantityField] = map[string]int{options.Rooms[0]: 1}
			} else {
				fields[options.QuantityField] = 1
			}
			for _, choice := range options.Choices {
				for _, value := range choice.Choices {
					fields[choice.Name] = value
					mustPriceFields(test, options.ServiceType, fields)
				}
				fields[choice.Name] = choice.Default
			}
			if options.AddOns != nil {
				names := make([]string, 0, len(options.AddOns))
				for _, addOn := range options.AddOns {
					names = append(names, addOn.Name)
				}
				fields["additionalServices"] = names
			}
			mustPriceFields(test, options.ServiceType, fields)
		}
	}
}

func mustPriceFields(test *testing.T, serviceType ServiceType, fields map[string]any) {
	test.Helper()
	raw, err := json.Marshal(fields)
	if err != nil {
		test.Fatalf("marshal: %v", err)
	}
	params, err := DecodeServiceParams(serviceType, raw)
	if err != nil {
		test.Fatalf("decode %s %s: %v", serviceType, raw, err)
	}
	if _, err := ComputePrice(serviceType, params); err != nil {
		test.Fatalf("price %s %s: %v", serviceType, raw, err)
	}
}
