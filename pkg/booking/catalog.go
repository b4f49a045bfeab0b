package booking

import "github.com/shopspring/decimal"

// Catalog amounts are kobo. Multipliers and discounts are ratios.

type rateCard struct {
	baseMinor    int64
	perUnitMinor int64
}

// maxQuantity bounds every client-supplied counter and the total of a request.
const maxQuantity = 1000

const (
	defaultCleaningPackage = "basic"
	defaultHomeSize        = "small"
	defaultFrequency       = "one_time"
	defaultLaundryTier     = "standard"
	defaultPropertySize    = "studio"
	defaultUrgency         = "standard"
	defaultGardenSize      = "small"
)

var (
	roomTypes = map[string]struct{}{
		"bedroom":     {},
		"living_room": {},
		"kitchen":     {},
		"bathroom":    {},
		"terrace":     {},
		"dining_room": {},
		"garage":      {},
	}

	cleaningCategories = map[string]rateCard{
		"standard":          {baseMinor: 800_000, perUnitMinor: 120_000},
		"deep":              {baseMinor: 1_200_000, perUnitMinor: 180_000},
		"post_construction": {baseMinor: 2_000_000, perUnitMinor: 250_000},
	}

	cleaningPackages = map[string]decimal.Decimal{
		"basic":   decimal.NewFromInt(1),
		"premium": decimal.RequireFromString("1.25"),
		"luxury":  decimal.RequireFromString("1.5"),
	}

	homeSizes = map[string]decimal.Decimal{
		"small":  decimal.NewFromInt(1),
		"medium": decimal.RequireFromString("1.2"),
		"large":  decimal.RequireFromString("1.5"),
	}

	frequencyDiscounts = map[string]decimal.Decimal{
		"one_time":  decimal.Zero,
		"weekly":    decimal.RequireFromString("0.15"),
		"bi_weekly": decimal.RequireFromString("0.10"),
		"monthly":   decimal.RequireFromString("0.05"),
	}

	laundryCategories = map[string]rateCard{
		"wash_fold": {baseMinor: 150_000, perUnitMinor: 50_000},
		"dry_clean": {baseMinor: 200_000, perUnitMinor: 120_000},
		"ironing":   {baseMinor: 100_000, perUnitMinor: 30_000},
	}

	laundryTiers = map[string]decimal.Decimal{
		"standard": decimal.NewFromInt(1),
		"express":  decimal.RequireFromString("1.5"),
	}

	moveOutCategories = map[string]rateCard{
		"move_out_clean": {baseMinor: 1_500_000, perUnitMinor: 200_000},
		"full_move":      {baseMinor: 2_500_000, perUnitMinor: 500_000},
	}

	propertySizes = map[string]decimal.Decimal{
		"studio":    decimal.NewFromInt(1),
		"apartment": decimal.RequireFromString("1.2"),
		"duplex":    decimal.RequireFromString("1.6"),
	}

	moveOutAddOns = map[string]int64{
		"packing":            500_000,
		"storage":            1_000_000,
		"furniture_assembly": 750_000,
	}

	repairCategories = map[string]rateCard{
		"plumbing":   {baseMinor: 1_000_000, perUnitMinor: 300_000},
		"electrical": {baseMinor: 1_200_000, perUnitMinor: 350_000},
		"carpentry":  {baseMinor: 900_000, perUnitMinor: 250_000},
		"appliance":  {baseMinor: 1_100_000, perUnitMinor: 400_000},
		"painting":   {baseMinor: 1_500_000, perUnitMinor: 500_000},
	}

	repairUrgencies = map[string]decimal.Decimal{
		"standard":  decimal.NewFromInt(1),
		"urgent":    decimal.RequireFromString("1.5"),
		"emergency": decimal.NewFromInt(2),
	}

	gardeningCategories = map[string]rateCard{
		"lawn_care":      {baseMinor: 600_000, perUnitMinor: 100_000},
		"landscaping":    {baseMinor: 1_500_000, perUnitMinor: 250_000},
		"hedge_trimming": {baseMinor: 500_000, perUnitMinor: 80_000},
	}

	gardenSizes = map[string]decimal.Decimal{
		"small":  decimal.NewFromInt(1),
		"medium": decimal.RequireFromString("1.3"),
		"large":  decimal.RequireFromString("1.6"),
	}
)
