package config

import "captcha-gateway-api/internal/models"

// DefaultPlans are seeded on first boot when the plans table is empty.
// A limit of zero means the window has no cap.
func DefaultPlans() []models.Plan {
	return []models.Plan{
		{
			Name:                "Free",
			DisplayName:         "Free",
			PriceMonthly:        0,
			MonthlyRequestLimit: 30000,
			RateLimitPerMinute:  60,
			IsActive:            true,
		},
		{
			Name:                "Starter",
			DisplayName:         "Starter",
			PriceMonthly:        29000,
			MonthlyRequestLimit: 300000,
			RateLimitPerMinute:  300,
			IsActive:            true,
		},
		{
			Name:                "Pro",
			DisplayName:         "Pro",
			PriceMonthly:        99000,
			MonthlyRequestLimit: 1500000,
			RateLimitPerMinute:  1000,
			IsActive:            true,
		},
		{
			Name:                "Enterprise",
			DisplayName:         "Enterprise",
			PriceMonthly:        0,
			MonthlyRequestLimit: 0, // no monthly cap
			RateLimitPerMinute:  0, // no per-minute cap
			IsActive:            true,
		},
	}
}
