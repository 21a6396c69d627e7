package kube

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/K-PaaS/cp-portal-service-broker/internal/domain"
)

// Compile-time check: Client implements domain.PlatformClient.
var _ domain.PlatformClient = (*Client)(nil)

const managedByLabel = "app.kubernetes.io/managed-by"
const managedByValue = "cp-broker"

// Config holds the cluster connection parameters.
type Config struct {
	Host     string
	Token    string
	Insecure bool
}

// RegistryConfig holds the credentials for the container registry pull
// secret created in every tenant namespace.
type RegistryConfig struct {
	URL      string
	Username string
	Password string
}

// Client implements domain.PlatformClient against a Kubernetes cluster.
// Mutating calls go straight through; reads retry transient failures
// because they are safe to repeat.
type Client struct {
	clientset kubernetes.Interface
	registry  RegistryConfig
	readRetry retrypolicy.RetryPolicy[any]
}

// New builds a client from a bearer-token connection config.
func New(cfg Config, registry RegistryConfig) (*Client, error) {
	restCfg := &rest.Config{
		Host:        cfg.Host,
		BearerToken: cfg.Token,
		TLSClientConfig: rest.TLSClientConfig{
			Insecure: cfg.Insecure,
		},
	}

	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("creating clientset: %w", err)
	}

	return NewFromClientset(clientset, registry), nil
}

// NewFromClientset wraps an existing clientset. Used by tests with a
// fake clientset.
func NewFromClientset(clientset kubernetes.Interface, registry RegistryConfig) *Client {
	// Not-found is an answer, not a transient failure.
	retry := retrypolicy.NewBuilder[any]().
		WithBackoff(100*time.Millisecond, 2*time.Second).
		WithMaxRetries(3).
		HandleIf(func(_ any, err error) bool {
			return err != nil && !apierrors.IsNotFound(err)
		}).
		Build()

	return &Client{
		clientset: clientset,
		registry:  registry,
		readRetry: retry,
	}
}

func (c *Client) NamespaceExists(ctx context.Context, name string) (bool, error) {
	_, err := failsafe.With(c.readRetry).WithContext(ctx).Get(func() (any, error) {
		return c.clientset.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{})
	})
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("getting namespace %q: %w", name, err)
	}
	return true, nil
}

func (c *Client) CreateNamespace(ctx context.Context, name string) error {
	ns := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name:   name,
			Labels: map[string]string{managedByLabel: managedByValue},
		},
	}
	if _, err := c.clientset.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{}); err != nil {
		return fmt.Errorf("creating namespace %q: %w", name, err)
	}
	return nil
}

func (c *Client) DeleteNamespace(ctx context.Context, name string) error {
	err := c.clientset.CoreV1().Namespaces().Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("deleting namespace %q: %w", name, err)
	}
	return nil
}

// CreateResourceQuota sets the namespace hard limits from the plan's
// sizing tier. Quantities arrive in decimal notation and are rewritten
// to the binary suffixes the API expects.
func (c *Client) CreateResourceQuota(ctx context.Context, namespace string, plan domain.Plan) error {
	quota, err := c.buildQuota(namespace, plan)
	if err != nil {
		return err
	}
	if _, err := c.clientset.CoreV1().ResourceQuotas(namespace).Create(ctx, quota, metav1.CreateOptions{}); err != nil {
		return fmt.Errorf("creating resource quota in %q: %w", namespace, err)
	}
	return nil
}

// ReplaceResourceQuota overwrites the existing quota with the new plan's
// limits. Used by plan changes, where the quota must already exist.
func (c *Client) ReplaceResourceQuota(ctx context.Context, namespace string, plan domain.Plan) error {
	quota, err := c.buildQuota(namespace, plan)
	if err != nil {
		return err
	}

	existing, err := c.clientset.CoreV1().ResourceQuotas(namespace).Get(ctx, quota.Name, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("getting resource quota in %q: %w", namespace, err)
	}

	existing.Spec = quota.Spec
	if _, err := c.clientset.CoreV1().ResourceQuotas(namespace).Update(ctx, existing, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("updating resource quota in %q: %w", namespace, err)
	}
	return nil
}

func (c *Client) buildQuota(namespace string, plan domain.Plan) (*corev1.ResourceQuota, error) {
	memory, err := resource.ParseQuantity(domain.NormalizeQuantity(plan.Memory))
	if err != nil {
		return nil, fmt.Errorf("parsing memory quantity %q: %w", plan.Memory, err)
	}
	storage, err := resource.ParseQuantity(domain.NormalizeQuantity(plan.Disk))
	if err != nil {
		return nil, fmt.Errorf("parsing disk quantity %q: %w", plan.Disk, err)
	}

	return &corev1.ResourceQuota{
		ObjectMeta: metav1.ObjectMeta{
			Name:      namespace + "-resourcequota",
			Namespace: namespace,
			Labels:    map[string]string{managedByLabel: managedByValue},
		},
		Spec: corev1.ResourceQuotaSpec{
			Hard: corev1.ResourceList{
				corev1.ResourceLimitsMemory:    memory,
				corev1.ResourceRequestsStorage: storage,
			},
		},
	}, nil
}

// CreateLimitRange installs fixed per-container defaults so workloads
// without explicit limits still count against the namespace quota.
func (c *Client) CreateLimitRange(ctx context.Context, namespace string) error {
	lr := &corev1.LimitRange{
		ObjectMeta: metav1.ObjectMeta{
			Name:      namespace + "-limitrange",
			Namespace: namespace,
			Labels:    map[string]string{managedByLabel: managedByValue},
		},
		Spec: corev1.LimitRangeSpec{
			Limits: []corev1.LimitRangeItem{
				{
					Type: corev1.LimitTypeContainer,
					Default: corev1.ResourceList{
						corev1.ResourceMemory: resource.MustParse("256Mi"),
					},
					DefaultRequest: corev1.ResourceList{
						corev1.ResourceMemory: resource.MustParse("64Mi"),
					},
				},
			},
		},
	}
	if _, err := c.clientset.CoreV1().LimitRanges(namespace).Create(ctx, lr, metav1.CreateOptions{}); err != nil {
		return fmt.Errorf("creating limit range in %q: %w", namespace, err)
	}
	return nil
}

// CreateRole creates a namespaced role. Roles whose name carries "init"
// get read-only rules; every other role gets full access within the
// namespace.
func (c *Client) CreateRole(ctx context.Context, namespace, roleName string) error {
	verbs := []string{"*"}
	if strings.Contains(roleName, "init") {
		verbs = []string{"get", "list", "watch"}
	}

	role := &rbacv1.Role{
		ObjectMeta: metav1.ObjectMeta{
			Name:      roleName,
			Namespace: namespace,
			Labels:    map[string]string{managedByLabel: managedByValue},
		},
		Rules: []rbacv1.PolicyRule{
			{
				APIGroups: []string{"*"},
				Resources: []string{"*"},
				Verbs:     verbs,
			},
		},
	}
	if _, err := c.clientset.RbacV1().Roles(namespace).Create(ctx, role, metav1.CreateOptions{}); err != nil {
		return fmt.Errorf("creating role %q in %q: %w", roleName, namespace, err)
	}
	return nil
}

func (c *Client) CreateRoleBinding(ctx context.Context, namespace, roleName, account string) error {
	binding := &rbacv1.RoleBinding{
		ObjectMeta: metav1.ObjectMeta{
			Name:      account + "-binding",
			Namespace: namespace,
			Labels:    map[string]string{managedByLabel: managedByValue},
		},
		Subjects: []rbacv1.Subject{
			{
				Kind:      rbacv1.ServiceAccountKind,
				Name:      account,
				Namespace: namespace,
			},
		},
		RoleRef: rbacv1.RoleRef{
			APIGroup: rbacv1.GroupName,
			Kind:     "Role",
			Name:     roleName,
		},
	}
	if _, err := c.clientset.RbacV1().RoleBindings(namespace).Create(ctx, binding, metav1.CreateOptions{}); err != nil {
		return fmt.Errorf("creating role binding for %q in %q: %w", account, namespace, err)
	}
	return nil
}

func (c *Client) CreateServiceAccount(ctx context.Context, namespace, account string) error {
	sa := &corev1.ServiceAccount{
		ObjectMeta: metav1.ObjectMeta{
			Name:      account,
			Namespace: namespace,
			Labels:    map[string]string{managedByLabel: managedByValue},
		},
	}
	if _, err := c.clientset.CoreV1().ServiceAccounts(namespace).Create(ctx, sa, metav1.CreateOptions{}); err != nil {
		return fmt.Errorf("creating service account %q in %q: %w", account, namespace, err)
	}
	return nil
}

// ServiceAccountToken creates a long-lived token secret bound to the
// service account and waits for the control plane to populate it. The
// read retries because token population is asynchronous.
func (c *Client) ServiceAccountToken(ctx context.Context, namespace, account string) (string, error) {
	secretName := account + "-token"
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      secretName,
			Namespace: namespace,
			Labels:    map[string]string{managedByLabel: managedByValue},
			Annotations: map[string]string{
				corev1.ServiceAccountNameKey: account,
			},
		},
		Type: corev1.SecretTypeServiceAccountToken,
	}
	if _, err := c.clientset.CoreV1().Secrets(namespace).Create(ctx, secret, metav1.CreateOptions{}); err != nil && !apierrors.IsAlreadyExists(err) {
		return "", fmt.Errorf("creating token secret in %q: %w", namespace, err)
	}

	token, err := failsafe.With(c.readRetry).WithContext(ctx).Get(func() (any, error) {
		got, err := c.clientset.CoreV1().Secrets(namespace).Get(ctx, secretName, metav1.GetOptions{})
		if err != nil {
			return nil, err
		}
		data, ok := got.Data[corev1.ServiceAccountTokenKey]
		if !ok || len(data) == 0 {
			return nil, fmt.Errorf("token for %q not yet populated", account)
		}
		return string(data), nil
	})
	if err != nil {
		return "", fmt.Errorf("reading token for %q: %w", account, err)
	}
	return token.(string), nil
}

// CreateRegistrySecret installs the image pull secret for the shared
// container registry.
func (c *Client) CreateRegistrySecret(ctx context.Context, namespace string) error {
	auth := base64.StdEncoding.EncodeToString([]byte(c.registry.Username + ":" + c.registry.Password))
	dockerConfig := map[string]any{
		"auths": map[string]any{
			c.registry.URL: map[string]string{
				"username": c.registry.Username,
				"password": c.registry.Password,
				"auth":     auth,
			},
		},
	}
	payload, err := json.Marshal(dockerConfig)
	if err != nil {
		return fmt.Errorf("encoding registry config: %w", err)
	}

	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      namespace + "-registry",
			Namespace: namespace,
			Labels:    map[string]string{managedByLabel: managedByValue},
		},
		Type: corev1.SecretTypeDockerConfigJson,
		Data: map[string][]byte{
			corev1.DockerConfigJsonKey: payload,
		},
	}
	if _, err := c.clientset.CoreV1().Secrets(namespace).Create(ctx, secret, metav1.CreateOptions{}); err != nil {
		return fmt.Errorf("creating registry secret in %q: %w", namespace, err)
	}
	return nil
}
