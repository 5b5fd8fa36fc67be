package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// DefaultPlanSpec describes a plan provisioned at startup when none exists
// for its type. Limits with value 0 mean unlimited.
type DefaultPlanSpec struct {
	Name           string          `mapstructure:"name"`
	Type           string          `mapstructure:"type"`
	Tier           string          `mapstructure:"tier"`
	StartingCredit string          `mapstructure:"startingCredit"`
	MonthlyCredit  string          `mapstructure:"monthlyCredit"`
	Limits         []RateLimitSpec `mapstructure:"limits"`
}

type RateLimitSpec struct {
	Metric      string `mapstructure:"metric"`
	Granularity string `mapstructure:"granularity"`
	Value       int64  `mapstructure:"value"`
}

// QuotaDefaults is the seedable plan catalog.
type QuotaDefaults struct {
	Plans []DefaultPlanSpec `mapstructure:"plans"`
}

func DefaultQuotaDefaults() QuotaDefaults {
	return QuotaDefaults{
		Plans: []DefaultPlanSpec{
			{
				Name:           "Free",
				Type:           "individual",
				Tier:           "free",
				StartingCredit: "5.00",
				MonthlyCredit:  "0",
				Limits: []RateLimitSpec{
					{Metric: "api_requests", Granularity: "day", Value: 1000},
					{Metric: "api_requests", Granularity: "minute", Value: 60},
					{Metric: "api_tokens", Granularity: "day", Value: 500000},
					{Metric: "playground_total_requests", Granularity: "day", Value: 200},
				},
			},
			{
				Name:           "Team Free",
				Type:           "organization",
				Tier:           "free",
				StartingCredit: "25.00",
				MonthlyCredit:  "0",
				Limits: []RateLimitSpec{
					{Metric: "api_requests", Granularity: "day", Value: 10000},
					{Metric: "api_requests", Granularity: "minute", Value: 300},
					{Metric: "api_tokens", Granularity: "day", Value: 5000000},
					{Metric: "playground_total_requests", Granularity: "day", Value: 1000},
				},
			},
		},
	}
}

// QuotaDefaultsHolder keeps the current plan catalog and hot-reloads it when
// the config file changes on disk.
type QuotaDefaultsHolder struct {
	current atomic.Value // holds QuotaDefaults
}

func NewQuotaDefaultsHolder() (*QuotaDefaultsHolder, error) {
	v := viper.New()

	v.SetConfigName("quota")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/keychain/config")
	v.AddConfigPath("/etc/keychain")
	v.AddConfigPath(".")

	v.SetEnvPrefix("KEYCHAIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &QuotaDefaultsHolder{}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		holder.current.Store(DefaultQuotaDefaults())
		return holder, nil
	}

	var cfg QuotaDefaults
	if err := v.UnmarshalKey("quota", &cfg); err != nil {
		return nil, err
	}
	if err := validateQuotaDefaults(cfg); err != nil {
		return nil, err
	}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated QuotaDefaults
		if err := v.UnmarshalKey("quota", &updated); err != nil {
			log.Printf("[quota-config] reload failed: %v", err)
			return
		}
		if err := validateQuotaDefaults(updated); err != nil {
			log.Printf("[quota-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[quota-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *QuotaDefaultsHolder) Get() QuotaDefaults {
	return h.current.Load().(QuotaDefaults)
}

func validateQuotaDefaults(cfg QuotaDefaults) error {
	if len(cfg.Plans) == 0 {
		return errors.New("quota.plans cannot be empty")
	}
	types := map[string]int{}
	for _, p := range cfg.Plans {
		if strings.TrimSpace(p.Name) == "" {
			return errors.New("quota.plans entries require a name")
		}
		types[p.Type]++
	}
	for t, n := range types {
		if n > 1 {
			return errors.New("quota.plans defines more than one default plan for type " + t)
		}
	}
	return nil
}
