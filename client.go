// Package flagdeck contains the Go SDK of FlagDeck: a client-side
// feature flag evaluation library that keeps a fresh local copy of the
// remote flag configuration and evaluates per-user flag values against
// targeting rules.
package flagdeck

import (
	"context"
	"net/http"
	"time"
)

const DefaultPollInterval = 60 * time.Second
const DefaultMaxInitWaitTime = 5 * time.Second
const DefaultHTTPTimeout = 30 * time.Second

// PollingMode specifies a strategy for refreshing the configuration.
type PollingMode int

const (
	// AutoPoll causes the client to refresh the configuration
	// automatically at least as often as the Config.PollInterval
	// parameter.
	AutoPoll PollingMode = iota

	// Manual will only refresh the configuration when Refresh
	// is called explicitly, falling back to the cache for the initial
	// value or if the refresh fails.
	Manual

	// Lazy will refresh the configuration whenever a value
	// is retrieved and the configuration is older than
	// Config.PollInterval.
	Lazy
)

// Config describes configuration options for the Client.
type Config struct {
	// SDKKey holds the key for the SDK. This parameter is mandatory.
	SDKKey string

	// Logger is used to log information about configuration evaluation
	// and issues. If it's nil, DefaultLogger(LogLevelWarn) will be used.
	// It assumes that the logging level will not be increased during
	// the lifetime of the client.
	Logger Logger

	// LogLevel determines the logging verbosity. When zero, the
	// logger's own level is used.
	LogLevel LogLevel

	// Cache is used to cache configuration values across client
	// instances or processes. If it's nil, only the in-memory copy is
	// maintained.
	Cache ConfigCache

	// BaseURL holds the URL of the configuration server. If this is
	// empty, the default CDN URL is used.
	BaseURL string

	// Transport is used as the HTTP transport for requests to the
	// configuration server. If it's nil, http.DefaultTransport will be
	// used.
	Transport http.RoundTripper

	// HTTPTimeout holds the timeout for HTTP requests made by the
	// client. If it's zero, DefaultHTTPTimeout will be used. If it's
	// negative, no timeout will be used.
	HTTPTimeout time.Duration

	// PollingMode specifies how the configuration is refreshed.
	// The zero value (default) is AutoPoll.
	PollingMode PollingMode

	// PollInterval specifies how old a configuration can be before
	// it's considered stale. If this is less than 1, DefaultPollInterval
	// is used. This parameter is ignored when PollingMode is Manual.
	PollInterval time.Duration

	// MaxInitWaitTime is the maximum time a get call blocks waiting for
	// the first fetch in AutoPoll mode. If this is less than 1,
	// DefaultMaxInitWaitTime is used.
	MaxInitWaitTime time.Duration

	// Hooks controls the events sent by the Client. When nil, a new
	// empty registry is created, reachable through Client.Hooks.
	Hooks *Hooks

	// Offline indicates whether the client should be initialized
	// without allowing any HTTP calls.
	Offline bool
}

// Client is an object for handling feature flag configurations
// provided by FlagDeck. Its methods are safe for concurrent use.
type Client struct {
	cfg       Config
	logger    *leveledLogger
	hooks     *Hooks
	service   *configService
	evaluator *rolloutEvaluator
}

// NewClient returns a new Client that accesses the default
// configuration servers with the given SDK key.
//
// The GetBoolValue, GetIntValue, GetFloatValue and GetStringValue
// methods can be used to find out current feature flag values. These
// methods will always return a value - if there is no configuration
// available, they return the given default.
func NewClient(sdkKey string) *Client {
	return NewCustomClient(Config{SDKKey: sdkKey})
}

// NewCustomClient initializes a new Client with advanced configuration.
func NewCustomClient(cfg Config) *Client {
	if cfg.PollInterval < 1 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxInitWaitTime < 1 {
		cfg.MaxInitWaitTime = DefaultMaxInitWaitTime
	}
	hooks := cfg.Hooks
	if hooks == nil {
		hooks = &Hooks{}
	}
	logger := newLeveledLogger(cfg.Logger, cfg.LogLevel, hooks)
	fetcher := newConfigFetcher(cfg, logger)
	return &Client{
		cfg:       cfg,
		logger:    logger,
		hooks:     hooks,
		service:   newConfigService(cfg, fetcher, logger, hooks),
		evaluator: newRolloutEvaluator(logger),
	}
}

// Hooks returns the event registry of the client.
func (client *Client) Hooks() *Hooks {
	return client.hooks
}

// Refresh forces a configuration fetch regardless of the cached
// entry's age. It never panics; failures are reported in the result.
func (client *Client) Refresh(ctx context.Context) RefreshResult {
	return client.service.refresh(ctx)
}

// SetOnline configures the client to allow HTTP requests.
func (client *Client) SetOnline() {
	client.service.setOnline()
}

// SetOffline configures the client to not initiate HTTP requests.
func (client *Client) SetOffline() {
	client.service.setOffline()
}

// IsOffline reports whether the client is configured not to initiate
// HTTP requests.
func (client *Client) IsOffline() bool {
	return client.service.isOffline()
}

// Ready returns a channel that is closed when the client has a usable
// configuration: fresh, stale-but-present, or timed out waiting.
func (client *Client) Ready() <-chan struct{} {
	return client.service.ready
}

// Close shuts down the client. After closing, it shouldn't be used.
func (client *Client) Close() {
	client.service.close()
}

// GetBoolValue returns the value of a boolean-typed feature flag, or
// defaultValue if no value can be found or the flag has a different
// type. If user is non-nil, it will be used to choose the value (see
// the User documentation for details).
func (client *Client) GetBoolValue(key string, defaultValue bool, user User) bool {
	if v, ok := client.GetValueDetails(key, defaultValue, user).Value.(bool); ok {
		return v
	}
	return defaultValue
}

// GetBoolValueDetails returns the value and evaluation details of a boolean-typed feature flag.
func (client *Client) GetBoolValueDetails(key string, defaultValue bool, user User) BoolEvaluationDetails {
	details := client.GetValueDetails(key, defaultValue, user)
	v, ok := details.Value.(bool)
	if !ok {
		v = defaultValue
	}
	return BoolEvaluationDetails{Data: details.Data, Value: v}
}

// GetIntValue is like GetBoolValue except for int-typed (whole number) feature flags.
func (client *Client) GetIntValue(key string, defaultValue int, user User) int {
	if v, ok := client.GetValueDetails(key, defaultValue, user).Value.(int); ok {
		return v
	}
	return defaultValue
}

// GetIntValueDetails is like GetBoolValueDetails except for int-typed (whole number) feature flags.
func (client *Client) GetIntValueDetails(key string, defaultValue int, user User) IntEvaluationDetails {
	details := client.GetValueDetails(key, defaultValue, user)
	v, ok := details.Value.(int)
	if !ok {
		v = defaultValue
	}
	return IntEvaluationDetails{Data: details.Data, Value: v}
}

// GetFloatValue is like GetBoolValue except for float-typed (decimal number) feature flags.
func (client *Client) GetFloatValue(key string, defaultValue float64, user User) float64 {
	if v, ok := client.GetValueDetails(key, defaultValue, user).Value.(float64); ok {
		return v
	}
	return defaultValue
}

// GetFloatValueDetails is like GetBoolValueDetails except for float-typed (decimal number) feature flags.
func (client *Client) GetFloatValueDetails(key string, defaultValue float64, user User) FloatEvaluationDetails {
	details := client.GetValueDetails(key, defaultValue, user)
	v, ok := details.Value.(float64)
	if !ok {
		v = defaultValue
	}
	return FloatEvaluationDetails{Data: details.Data, Value: v}
}

// GetStringValue is like GetBoolValue except for string-typed (text) feature flags.
func (client *Client) GetStringValue(key string, defaultValue string, user User) string {
	if v, ok := client.GetValueDetails(key, defaultValue, user).Value.(string); ok {
		return v
	}
	return defaultValue
}

// GetStringValueDetails is like GetBoolValueDetails except for string-typed (text) feature flags.
func (client *Client) GetStringValueDetails(key string, defaultValue string, user User) StringEvaluationDetails {
	details := client.GetValueDetails(key, defaultValue, user)
	v, ok := details.Value.(string)
	if !ok {
		v = defaultValue
	}
	return StringEvaluationDetails{Data: details.Data, Value: v}
}

// GetValueDetails returns the value and evaluation details of a feature
// flag or setting without caring about its type.
func (client *Client) GetValueDetails(key string, defaultValue interface{}, user User) EvaluationDetails {
	entry := client.service.currentEntry(context.Background())
	fetchTime := distantPast
	var conf *ConfigJson
	if !entry.isEmpty() {
		fetchTime = entry.fetchTime
		conf = entry.config
	}
	result := client.evaluator.evaluate(key, user, defaultValue, "", conf)
	return EvaluationDetails{
		Value: result.value,
		Data: EvaluationDetailsData{
			Key:                     key,
			VariationID:             result.variationID,
			User:                    user,
			IsDefaultValue:          result.err != nil,
			Error:                   result.err,
			FetchTime:               fetchTime,
			MatchedTargetingRule:    result.matchedTargetingRule,
			MatchedPercentageOption: result.matchedPercentageOption,
		},
	}
}

// GetAllKeys returns all the known keys.
func (client *Client) GetAllKeys() []string {
	settings, _ := client.service.getSettings(context.Background())
	keys := make([]string, 0, len(settings))
	for key := range settings {
		keys = append(keys, key)
	}
	return keys
}

// GetAllValues returns all keys and values in a key-value map.
func (client *Client) GetAllValues(user User) map[string]interface{} {
	entry := client.service.currentEntry(context.Background())
	if entry.isEmpty() {
		return map[string]interface{}{}
	}
	values := make(map[string]interface{}, len(entry.config.Settings))
	for key := range entry.config.Settings {
		values[key] = client.evaluator.evaluate(key, user, nil, "", entry.config).value
	}
	return values
}

// GetAllValueDetails returns values along with evaluation details of
// all feature flags and settings.
func (client *Client) GetAllValueDetails(user User) []EvaluationDetails {
	entry := client.service.currentEntry(context.Background())
	if entry.isEmpty() {
		return nil
	}
	details := make([]EvaluationDetails, 0, len(entry.config.Settings))
	for key := range entry.config.Settings {
		result := client.evaluator.evaluate(key, user, nil, "", entry.config)
		details = append(details, EvaluationDetails{
			Value: result.value,
			Data: EvaluationDetailsData{
				Key:                     key,
				VariationID:             result.variationID,
				User:                    user,
				IsDefaultValue:          result.err != nil,
				Error:                   result.err,
				FetchTime:               entry.fetchTime,
				MatchedTargetingRule:    result.matchedTargetingRule,
				MatchedPercentageOption: result.matchedPercentageOption,
			},
		})
	}
	return details
}

// GetKeyValueForVariationID returns the key and value that are
// associated with the given variation ID. If the variation ID isn't
// found, it returns "", nil.
func (client *Client) GetKeyValueForVariationID(id string) (string, interface{}) {
	settings, _ := client.service.getSettings(context.Background())
	for key, setting := range settings {
		if setting.VariationID == id {
			return key, setting.Value.get(setting.Type)
		}
		for _, rule := range setting.TargetingRules {
			if rule.ServedValue != nil && rule.ServedValue.VariationID == id {
				return key, rule.ServedValue.Value.get(setting.Type)
			}
			for _, option := range rule.PercentageOptions {
				if option.VariationID == id {
					return key, option.Value.get(setting.Type)
				}
			}
		}
	}
	return "", nil
}
