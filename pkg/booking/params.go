package booking

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// ServiceType enumerates the bookable services.
type ServiceType string

const (
	ServiceCleaning  ServiceType = "cleaning"
	ServiceLaundry   ServiceType = "laundry"
	ServiceMoveOut   ServiceType = "move_out"
	ServiceRepairs   ServiceType = "repairs"
	ServiceGardening ServiceType = "gardening"
)

// ParseServiceType validates a service type.
func ParseServiceType(raw string) (ServiceType, error) {
	switch ServiceType(strings.TrimSpace(raw)) {
	case ServiceCleaning:
		return ServiceCleaning, nil
	case ServiceLaundry:
		return ServiceLaundry, nil
	case ServiceMoveOut:
		return ServiceMoveOut, nil
	case ServiceRepairs:
		return ServiceRepairs, nil
	case ServiceGardening:
		return ServiceGardening, nil
	default:
		return "", fmt.Errorf("%w: unknown service type %q", ErrInvalidParameter, raw)
	}
}

// String returns the wire value.
func (serviceType ServiceType) String() string {
	return string(serviceType)
}

// ServiceParams is the per-service payload of a booking. The set of
// implementations is closed; use DecodeServiceParams to build one.
type ServiceParams interface {
	ServiceType() ServiceType
	Category() string
	quote() (quote, error)
}

// CleaningParams describes a house cleaning request.
type CleaningParams struct {
	CategoryName        string         `json:"category"`
	Package             string         `json:"package,omitempty"`
	Rooms               map[string]int `json:"rooms"`
	HomeSize            string         `json:"homeSize,omitempty"`
	Frequency           string         `json:"frequency,omitempty"`
	SpecialInstructions string         `json:"specialInstructions,omitempty"`
}

// LaundryParams describes a laundry pickup.
type LaundryParams struct {
	CategoryName        string `json:"category"`
	Tier                string `json:"service,omitempty"`
	ItemCount           int    `json:"itemCount"`
	PickupTime          string `json:"pickupTime,omitempty"`
	SpecialInstructions string `json:"specialInstructions,omitempty"`
}

// MoveOutParams describes a move-out clean or full move.
type MoveOutParams struct {
	CategoryName       string         `json:"category"`
	Rooms              map[string]int `json:"rooms"`
	PropertySize       string         `json:"propertySize,omitempty"`
	AdditionalServices []string       `json:"additionalServices,omitempty"`
}

// RepairParams describes a repair visit.
type RepairParams struct {
	RepairType  string `json:"repairType"`
	Urgency     string `json:"urgency,omitempty"`
	Units       int    `json:"units"`
	Description string `json:"description,omitempty"`
}

// GardeningParams describes a gardening visit.
type GardeningParams struct {
	CategoryName string `json:"category"`
	Areas        int    `json:"areas"`
	GardenSize   string `json:"gardenSize,omitempty"`
	Frequency    string `json:"frequency,omitempty"`
}

// DecodeServiceParams decodes raw JSON into the variant for serviceType.
// Unknown fields are rejected.
func DecodeServiceParams(serviceType ServiceType, raw []byte) (ServiceParams, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: service params are required", ErrInvalidParameter)
	}
	var params ServiceParams
	switch serviceType {
	case ServiceCleaning:
		params = &CleaningParams{}
	case ServiceLaundry:
		params = &LaundryParams{}
	case ServiceMoveOut:
		params = &MoveOutParams{}
	case ServiceRepairs:
		params = &RepairParams{}
	case ServiceGardening:
		params = &GardeningParams{}
	default:
		return nil, fmt.Errorf("%w: unknown service type %q", ErrInvalidParameter, serviceType)
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(params); err != nil {
		return nil, fmt.Errorf("%w: service params: %v", ErrInvalidParameter, err)
	}
	return params, nil
}

// EncodeServiceParams returns the JSON form accepted by DecodeServiceParams.
func EncodeServiceParams(params ServiceParams) ([]byte, error) {
	if params == nil {
		return nil, fmt.Errorf("%w: service params are required", ErrInvalidParameter)
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode service params: %w", err)
	}
	return encoded, nil
}

func (*CleaningParams) ServiceType() ServiceType { return ServiceCleaning }
func (*LaundryParams) ServiceType() ServiceType { return ServiceLaundry }
func (*MoveOutParams) ServiceType() ServiceType { return ServiceMoveOut }
func (*RepairParams) ServiceType() ServiceType { return ServiceRepairs }
func (*GardeningParams) ServiceType() ServiceType { return ServiceGardening }

func (params *CleaningParams) Category() string { return params.CategoryName }
func (params *LaundryParams) Category() string { return params.CategoryName }
func (params *MoveOutParams) Category() string { return params.CategoryName }
func (params *RepairParams) Category() string { return params.RepairType }
func (params *GardeningParams) Category() string { return params.CategoryName }

func (params *CleaningParams) quote() (quote, error) {
	card, err := lookup("category", params.CategoryName, "", cleaningCategories)
	if err != nil {
		return quote{}, err
	}
	rooms, err := countRooms(params.Rooms)
	if err != nil {
		return quote{}, err
	}
	packageMultiplier, err := lookup("package", params.Package, defaultCleaningPackage, cleaningPackages)
	if err != nil {
		return quote{}, err
	}
	sizeMultiplier, err := lookup("homeSize", params.HomeSize, defaultHomeSize, homeSizes)
	if err != nil {
		return quote{}, err
	}
	discount, err := lookup("frequency", params.Frequency, defaultFrequency, frequencyDiscounts)
	if err != nil {
		return quote{}, err
	}
	return quote{
		card:        card,
		quantity:    rooms,
		multipliers: []decimal.Decimal{packageMultiplier, sizeMultiplier},
		discount:    discount,
	}, nil
}

func (params *LaundryParams) quote() (quote, error) {
	card, err := lookup("category", params.CategoryName, "", laundryCategories)
	if err != nil {
		return quote{}, err
	}
	if err := checkQuantity("itemCount", params.ItemCount); err != nil {
		return quote{}, err
	}
	tierMultiplier, err := lookup("service", params.Tier, defaultLaundryTier, laundryTiers)
	if err != nil {
		return quote{}, err
	}
	return quote{
		card:        card,
		quantity:    int64(params.ItemCount),
		multipliers: []decimal.Decimal{tierMultiplier},
	}, nil
}

func (params *MoveOutParams) quote() (quote, error) {
	card, err := lookup("category", params.CategoryName, "", moveOutCategories)
	if err != nil {
		return quote{}, err
	}
	rooms, err := countRooms(params.Rooms)
	if err != nil {
		return quote{}, err
	}
	sizeMultiplier, err := lookup("propertySize", params.PropertySize, defaultPropertySize, propertySizes)
	if err != nil {
		return quote{}, err
	}
	var addOns int64
	seen := make(map[string]struct{}, len(params.AdditionalServices))
	for _, name := range params.AdditionalServices {
		if _, duplicate := seen[name]; duplicate {
			return quote{}, fmt.Errorf("%w: additional service %q listed twice", ErrInvalidParameter, name)
		}
		seen[name] = struct{}{}
		price, err := lookup("additionalServices", name, "", moveOutAddOns)
		if err != nil {
			return quote{}, err
		}
		addOns += price
	}
	return quote{
		card:        card,
		quantity:    rooms,
		multipliers: []decimal.Decimal{sizeMultiplier},
		addOnsMinor: addOns,
	}, nil
}

func (params *RepairParams) quote() (quote, error) {
	card, err := lookup("repairType", params.RepairType, "", repairCategories)
	if err != nil {
		return quote{}, err
	}
	if err := checkQuantity("units", params.Units); err != nil {
		return quote{}, err
	}
	urgencyMultiplier, err := lookup("urgency", params.Urgency, defaultUrgency, repairUrgencies)
	if err != nil {
		return quote{}, err
	}
	return quote{
		card:        card,
		quantity:    int64(params.Units),
		multipliers: []decimal.Decimal{urgencyMultiplier},
	}, nil
}

func (params *GardeningParams) quote() (quote, error) {
	card, err := lookup("category", params.CategoryName, "", gardeningCategories)
	if err != nil {
		return quote{}, err
	}
	if err := checkQuantity("areas", params.Areas); err != nil {
		return quote{}, err
	}
	sizeMultiplier, err := lookup("gardenSize", params.GardenSize, defaultGardenSize, gardenSizes)
	if err != nil {
		return quote{}, err
	}
	discount, err := lookup("frequency", params.Frequency, defaultFrequency, frequencyDiscounts)
	if err != nil {
		return quote{}, err
	}
	return quote{
		card:        card,
		quantity:    int64(params.Areas),
		multipliers: []decimal.Decimal{sizeMultiplier},
		discount:    discount,
	}, nil
}

// lookup resolves an enumerated field. An empty value selects fallback when
// fallback is non-empty; otherwise the field is required.
func lookup[V any](field string, value string, fallback string, table map[string]V) (V, error) {
	var zero V
	key := strings.TrimSpace(value)
	if key == "" {
		if fallback == "" {
			return zero, fmt.Errorf("%w: %s is required", ErrInvalidParameter, field)
		}
		key = fallback
	}
	entry, ok := table[key]
	if !ok {
		return zero, fmt.Errorf("%w: %s %q is not one of [%s]", ErrInvalidParameter, field, value, strings.Join(sortedKeys(table), ", "))
	}
	return entry, nil
}

func countRooms(rooms map[string]int) (int64, error) {
	var total int64
	for room, count := range rooms {
		if _, ok := roomTypes[room]; !ok {
			return 0, fmt.Errorf("%w: room %q is not one of [%s]", ErrInvalidParameter, room, strings.Join(sortedKeys(roomTypes), ", "))
		}
		if err := checkQuantity(fmt.Sprintf("room %q count", room), count); err != nil {
			return 0, err
		}
		total += int64(count)
	}
	if total > maxQuantity {
		return 0, fmt.Errorf("%w: %d rooms exceed the limit of %d", ErrInvalidParameter, total, maxQuantity)
	}
	return total, nil
}

func checkQuantity(field string, count int) error {
	if count < 0 {
		return fmt.Errorf("%w: %s must not be negative", ErrInvalidParameter, field)
	}
	if count > maxQuantity {
		return fmt.Errorf("%w: %s must not exceed %d", ErrInvalidParameter, field, maxQuantity)
	}
	return nil
}

func sortedKeys[V any](table map[string]V) []string {
	keys := make([]string, 0, len(table))
	for key := range table {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
