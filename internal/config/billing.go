package config

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// BillingConfig carries per-contact billing overrides loaded from billing.yml.
//
//	billing:
//	  contacts:
//	    "1798123": { vatPercent: "10", accountCode: "R", dueInDays: 30 }
type BillingConfig struct {
	Contacts map[string]ContactBilling `mapstructure:"contacts"`
}

// ContactBilling overrides the env defaults for one contact.
type ContactBilling struct {
	VATPercent  string `mapstructure:"vatPercent"`
	AccountCode string `mapstructure:"accountCode"`
	DueInDays   int    `mapstructure:"dueInDays"`
}

// ForContact returns the override for a contact, or the zero value.
func (c BillingConfig) ForContact(contactID string) ContactBilling {
	if c.Contacts == nil {
		return ContactBilling{}
	}
	return c.Contacts[strings.TrimSpace(contactID)]
}

// VAT returns the override VAT percent if one is set.
func (c ContactBilling) VAT() (decimal.Decimal, bool) {
	raw := strings.TrimSpace(c.VATPercent)
	if raw == "" {
		return decimal.Zero, false
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return value, true
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{Contacts: map[string]ContactBilling{}}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/worksuite/config")
	v.AddConfigPath("/etc/worksuite")
	v.AddConfigPath(".")

	v.SetEnvPrefix("WORKSUITE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		return NewStaticBillingConfigHolder(DefaultBillingConfig()), nil
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfigHolder(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-config] reload failed: %v", err)
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			log.Printf("[billing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticBillingConfigHolder wraps a fixed config without a file watcher.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	if cfg.Contacts == nil {
		cfg.Contacts = map[string]ContactBilling{}
	}
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *BillingConfigHolder) Get() BillingConfig {
	if h == nil {
		return DefaultBillingConfig()
	}
	return h.current.Load().(BillingConfig)
}

func validateBillingConfig(cfg BillingConfig) error {
	for id, contact := range cfg.Contacts {
		if raw := strings.TrimSpace(contact.VATPercent); raw != "" {
			value, err := decimal.NewFromString(raw)
			if err != nil {
				return fmt.Errorf("billing.contacts.%s.vatPercent: %w", id, err)
			}
			if value.IsNegative() || value.GreaterThan(decimal.NewFromInt(100)) {
				return fmt.Errorf("billing.contacts.%s.vatPercent out of range", id)
			}
		}
		if contact.DueInDays < 0 {
			return fmt.Errorf("billing.contacts.%s.dueInDays cannot be negative", id)
		}
	}
	return nil
}
