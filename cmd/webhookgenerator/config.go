package main

// config describes one stream of signed provider deliveries.
type config struct {
	BaseURL   string `mapstructure:"base_url"`
	Provider  string `mapstructure:"provider"`
	Secret    string `mapstructure:"secret"`
	Account   string `mapstructure:"account"`
	EventType string `mapstructure:"event_type"`
	Interval  string `mapstructure:"interval"`
	// Count stops the generator after that many deliveries; zero runs until interrupted.
	Count int `mapstructure:"count"`
}
