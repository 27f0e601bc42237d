package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// AccessPolicy maps an organization role to the permissions it grants.
// Permissions are written as "object:action".
type AccessPolicy struct {
	Roles map[string][]string `mapstructure:"roles"`
}

func DefaultAccessPolicy() AccessPolicy {
	return AccessPolicy{
		Roles: map[string][]string{
			"ADMIN": {
				"invite:create",
				"invite:resend",
				"invite:revoke",
				"member:view",
				"member:update",
				"member:delete",
			},
			"TEAM": {
				"member:view",
			},
			"CUSTOMER": {},
		},
	}
}

type AccessPolicyHolder struct {
	current  atomic.Value // holds AccessPolicy
	onChange atomic.Value // holds func(AccessPolicy)
}

// NewAccessPolicyHolder reads access.yml from ACCESS_POLICY_PATH, /etc/orgaccess or the
// working directory and keeps watching it. Defaults apply when no file exists.
func NewAccessPolicyHolder(cfg Config, log *zap.Logger) (*AccessPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("access")
	v.SetConfigType("yml")
	if path := strings.TrimSpace(cfg.AccessPolicyPath); path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath("/etc/orgaccess")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ORGACCESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &AccessPolicyHolder{}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		holder.current.Store(DefaultAccessPolicy())
		return holder, nil
	}

	policy, err := decodeAccessPolicy(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(policy)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeAccessPolicy(v)
		if err != nil {
			if log != nil {
				log.Warn("access policy reload ignored", zap.String("file", e.Name), zap.Error(err))
			}
			return
		}
		holder.current.Store(updated)
		if fn, ok := holder.onChange.Load().(func(AccessPolicy)); ok && fn != nil {
			fn(updated)
		}
		if log != nil {
			log.Info("access policy reloaded", zap.String("file", e.Name))
		}
	})

	return holder, nil
}

// NewStaticAccessPolicyHolder returns a holder that never reloads.
func NewStaticAccessPolicyHolder(policy AccessPolicy) *AccessPolicyHolder {
	holder := &AccessPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func (h *AccessPolicyHolder) Get() AccessPolicy {
	return h.current.Load().(AccessPolicy)
}

// OnChange registers the callback invoked after a successful reload.
func (h *AccessPolicyHolder) OnChange(fn func(AccessPolicy)) {
	h.onChange.Store(fn)
}

func decodeAccessPolicy(v *viper.Viper) (AccessPolicy, error) {
	var raw AccessPolicy
	if err := v.UnmarshalKey("access", &raw); err != nil {
		return AccessPolicy{}, err
	}
	policy := AccessPolicy{Roles: make(map[string][]string, len(raw.Roles))}
	for role, perms := range raw.Roles {
		// viper lowercases map keys
		name := strings.ToUpper(strings.TrimSpace(role))
		cleaned := make([]string, 0, len(perms))
		for _, perm := range perms {
			perm = strings.ToLower(strings.TrimSpace(perm))
			if perm == "" {
				continue
			}
			if !strings.Contains(perm, ":") {
				return AccessPolicy{}, fmt.Errorf("access.roles.%s: permission %q must be object:action", name, perm)
			}
			cleaned = append(cleaned, perm)
		}
		policy.Roles[name] = cleaned
	}
	if err := validateAccessPolicy(policy); err != nil {
		return AccessPolicy{}, err
	}
	return policy, nil
}

func validateAccessPolicy(policy AccessPolicy) error {
	if len(policy.Roles) == 0 {
		return errors.New("access.roles cannot be empty")
	}
	if _, ok := policy.Roles["ADMIN"]; !ok {
		return errors.New("access.roles must define ADMIN")
	}
	for role, perms := range policy.Roles {
		if role == "ADMIN" {
			continue
		}
		for _, perm := range perms {
			object, _, _ := strings.Cut(perm, ":")
			if object == "invite" || object == "*" {
				return fmt.Errorf("access.roles.%s: %q is reserved for ADMIN", role, perm)
			}
		}
	}
	return nil
}
