package server

import "time"

const (
	writeWait = 10 * time.Second

	// Number of times a rules-engine call is attempted before giving up.
	rulesRetryAttempts = 3

	defaultRetryBaseDelay = time.Second
	defaultPowerupTTL     = 60 * time.Second
	defaultAbilitySweep   = time.Second
	defaultRulesTimeout   = 5 * time.Second
)

// Ability names recognised by the synchronization layer. Shield is evaluated
// by the rules engine; stealth is applied locally by visibility filtering.
const (
	AbilityStealth = "stealth"
	AbilityShield  = "shield"
)
