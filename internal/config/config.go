// Package config assembles broker configuration from the environment.
// A .env file in the working directory is loaded first when present, so
// local development does not need a wrapper script.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config carries every setting the broker needs at startup.
type Config struct {
	Port         string
	DatabasePath string
	PlansPath    string

	// Compute cluster.
	KubeHost     string
	KubeToken    string
	KubeInsecure bool

	// Container registry pull secret.
	RegistryURL      string
	RegistryUsername string
	RegistryPassword string

	// Identity provider.
	KeycloakURL           string
	KeycloakRealm         string
	KeycloakAdminRealm    string
	KeycloakAdminUser     string
	KeycloakAdminPassword string

	// Portal user-management API.
	PortalURL       string
	PortalClusterID string
	PortalUsername  string
	PortalPassword  string
	PortalAdminRole string

	// Provisioning policy.
	AdminOrganization string
	ClusterAdminGroup string
	DashboardURL      string
	InitRole          string
	AdminRole         string
}

// Load reads configuration from the environment, falling back to
// development defaults. Missing .env files are not an error.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:         envOrDefault("PORT", "8080"),
		DatabasePath: envOrDefault("DATABASE_PATH", "cp-broker.db"),
		PlansPath:    envOrDefault("PLANS_PATH", "configs/plans.yaml"),

		KubeHost:     envOrDefault("KUBE_HOST", "https://kubernetes.default.svc"),
		KubeToken:    os.Getenv("KUBE_TOKEN"),
		KubeInsecure: envBool("KUBE_INSECURE", false),

		RegistryURL:      envOrDefault("REGISTRY_URL", "harbor.example.com"),
		RegistryUsername: os.Getenv("REGISTRY_USERNAME"),
		RegistryPassword: os.Getenv("REGISTRY_PASSWORD"),

		KeycloakURL:           envOrDefault("KEYCLOAK_URL", "http://localhost:8081"),
		KeycloakRealm:         envOrDefault("KEYCLOAK_REALM", "cp-realm"),
		KeycloakAdminRealm:    envOrDefault("KEYCLOAK_ADMIN_REALM", "master"),
		KeycloakAdminUser:     envOrDefault("KEYCLOAK_ADMIN_USER", "admin"),
		KeycloakAdminPassword: os.Getenv("KEYCLOAK_ADMIN_PASSWORD"),

		PortalURL:       envOrDefault("PORTAL_URL", "http://localhost:8082"),
		PortalClusterID: envOrDefault("PORTAL_CLUSTER_ID", "cp-cluster"),
		PortalUsername:  os.Getenv("PORTAL_USERNAME"),
		PortalPassword:  os.Getenv("PORTAL_PASSWORD"),
		PortalAdminRole: envOrDefault("PORTAL_ADMIN_ROLE", "PORTAL_ADMIN"),

		AdminOrganization: envOrDefault("ADMIN_ORGANIZATION", "cp-portal"),
		ClusterAdminGroup: envOrDefault("CLUSTER_ADMIN_GROUP", "cluster-admin-group"),
		DashboardURL:      envOrDefault("DASHBOARD_URL", "http://localhost:8080"),
		InitRole:          envOrDefault("INIT_ROLE", "cp-init-role"),
		AdminRole:         envOrDefault("ADMIN_ROLE", "cp-admin-role"),
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
