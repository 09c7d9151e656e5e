package strategy

// template holds the baseline conditions for one strategy type.
type template struct {
	entry EntryConditions
	exit  ExitConditions
}

func strategyTemplates() map[string]template {
	return map[string]template{
		TypeMomentum: {
			entry: EntryConditions{
				MinScore:          55,
				MinConfidence:     0.4,
				RSILow:            25,
				RSIHigh:           65,
				TrendAlignment:    true,
				MomentumThreshold: 0.01,
			},
			exit: ExitConditions{
				ProfitTarget:   0.04,
				StopLoss:       0.02,
				TimeLimitHours: 6,
				RSIOverbought:  75,
				MomentumFade:   true,
			},
		},
		TypeTrend: {
			entry: EntryConditions{
				MinScore:      45,
				MinConfidence: 0.4,
				TrendStrength: 0.5,
			},
			exit: ExitConditions{
				ProfitTarget:   0.06,
				StopLoss:       0.03,
				TimeLimitHours: 12,
				TrendBreak:     true,
			},
		},
		TypeMeanReversion: {
			entry: EntryConditions{
				MinScore:      45,
				MinConfidence: 0.4,
				RSIExtreme:    true,
			},
			exit: ExitConditions{
				ProfitTarget:   0.04,
				StopLoss:       0.02,
				TimeLimitHours: 4,
				RSINormalize:   true,
			},
		},
		TypeScalping: {
			entry: EntryConditions{
				MinScore:      45,
				MinConfidence: 0.4,
				SpreadCheck:   true,
			},
			exit: ExitConditions{
				ProfitTarget:   0.03,
				StopLoss:       0.015,
				TimeLimitHours: 1,
				MomentumFade:   true,
			},
		},
	}
}
