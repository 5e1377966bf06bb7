package standards

// Version of the built-in reference tables: BIS 10500:2012 drinking-water
// limits and USEPA IRIS oral toxicity values.
const Version = "BIS-10500:2012+USEPA-IRIS/v1"

// Default returns a Registry over the built-in reference tables.
func Default() *Registry {
	return New(DefaultTables())
}

// DefaultTables returns the built-in reference tables.
func DefaultTables() Tables {
	return Tables{
		Version: Version,
		Standards: map[Metal]MetalStandard{
			Arsenic:   {Permissible: 0.01, Ideal: 0, MAC: 0.01, Background: 12.70},
			Cadmium:   {Permissible: 0.003, Ideal: 0, MAC: 0.003, Background: 0.10},
			Chromium:  {Permissible: 0.05, Ideal: 0, MAC: 0.05, Background: 67.30},
			Copper:    {Permissible: 0.05, Ideal: 0, MAC: 1.5, Background: 22.50},
			Iron:      {Permissible: 0.3, Ideal: 0, MAC: 0.3, Background: 15000.0},
			Lead:      {Permissible: 0.01, Ideal: 0, MAC: 0.01, Background: 21.00},
			Manganese: {Permissible: 0.1, Ideal: 0, MAC: 0.3, Background: 500.0},
			Mercury:   {Permissible: 0.001, Ideal: 0, MAC: 0.001, Background: 0.02},
			Nickel:    {Permissible: 0.02, Ideal: 0, MAC: 0.02, Background: 31.00},
			Zinc:      {Permissible: 5.0, Ideal: 0, MAC: 15.0, Background: 65.40},
		},
		Risk: map[Metal]RiskParameter{
			Arsenic:   {RfD: 0.0003, CSF: slope(1.5)},
			Cadmium:   {RfD: 0.0005, CSF: slope(6.3)},
			Chromium:  {RfD: 0.003, CSF: slope(0.5)},
			Copper:    {RfD: 0.04},
			Iron:      {RfD: 0.7},
			Lead:      {RfD: 0.0014, CSF: slope(0.0085)},
			Manganese: {RfD: 0.024},
			Mercury:   {RfD: 0.0003},
			Nickel:    {RfD: 0.02},
			Zinc:      {RfD: 0.3},
		},
		Profiles: map[Demographic]ExposureProfile{
			Adult: {
				BodyWeight:          70,
				IngestionRate:       2.2,
				ExposureFrequency:   350,
				ExposureDuration:    70,
				AveragingTime:       25550,
				CancerAveragingTime: 25550,
			},
			Child: {
				BodyWeight:          15,
				IngestionRate:       1.8,
				ExposureFrequency:   350,
				ExposureDuration:    6,
				AveragingTime:       2190,
				CancerAveragingTime: 25550,
			},
		},
	}
}

func slope(v float64) *float64 { return &v }
