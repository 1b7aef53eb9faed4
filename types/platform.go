package types

import "fmt"

// Platform is the store platform a transaction originated from.
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

// Environment selects which ledger environment the SDK talks to.
type Environment string

const (
	EnvironmentDevelopment Environment = "development"
	EnvironmentStaging     Environment = "staging"
	EnvironmentProduction  Environment = "production"
)

// ParseEnvironment validates an environment name.
func ParseEnvironment(s string) (Environment, error) {
	switch e := Environment(s); e {
	case EnvironmentDevelopment, EnvironmentStaging, EnvironmentProduction:
		return e, nil
	default:
		return "", fmt.Errorf("types: unknown environment %q", s)
	}
}

// Device describes the host device. It is sent with login and attached
// to diagnostic snapshots.
type Device struct {
	OS                string `json:"os"`
	OSVersion         string `json:"osVersion"`
	Model             string `json:"model"`
	AppVersionName    string `json:"appVersionName"`
	AppVersionCode    int64  `json:"appVersionCode"`
	SDKVersion        string `json:"sdkVersion"`
	InstallIdentifier string `json:"installIdentifier"`
}
