package tuning

import (
	"fmt"
	"strconv"

	"github.com/jamesainslie/sysopt/pkg/sysopt/config"
	"github.com/jamesainslie/sysopt/pkg/sysopt/executor"
)

// SSHKey is one sshd_config directive managed by the security category.
type SSHKey struct {
	Directive string
	Value     *string
}

// SSHKeys returns the managed directives in rewrite order.
func SSHKeys(c config.SSHConfig) []SSHKey {
	return []SSHKey{
		{"PermitRootLogin", c.PermitRootLogin},
		{"PasswordAuthentication", c.PasswordAuthentication},
		{"Protocol", c.Protocol},
		{"MaxAuthTries", c.MaxAuthTries},
	}
}

func (p *Pipeline) security(r *categoryRun, c config.SecurityConfig) {
	p.firewall(r, c.Firewall)
	p.sshd(r, c.SSH)
}

func (p *Pipeline) firewall(r *categoryRun, fw config.FirewallConfig) {
	if !fw.Enable {
		return
	}

	incoming := "allow"
	if fw.DenyAllByDefault {
		incoming = "deny"
	}
	r.run(executor.New("ufw", "default", incoming, "incoming"))
	r.run(executor.New("ufw", "default", "allow", "outgoing"))

	for _, port := range fw.BlockedPorts {
		if err := validPort(port); err != nil {
			r.record("ufw deny "+strconv.Itoa(port), err)
			continue
		}
		r.run(executor.New("ufw", "deny", strconv.Itoa(port)))
	}
	for _, port := range fw.AllowedPorts {
		if err := validPort(port); err != nil {
			r.record("ufw allow "+strconv.Itoa(port), err)
			continue
		}
		r.run(executor.New("ufw", "allow", strconv.Itoa(port)))
	}

	r.run(executor.New("ufw", "--force", "enable"))
}

func validPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalidValue, port)
	}
	return nil
}

// sshd rewrites each configured directive in the sshd config and then
// restarts the ssh service. The restart is issued whenever at least one
// directive is configured, even if every value was rejected. With no
// directive configured nothing is issued and sshd is not restarted.
func (p *Pipeline) sshd(r *categoryRun, ssh config.SSHConfig) {
	if !ssh.Configured() {
		return
	}

	path := ssh.ConfigPath
	if path == "" {
		path = config.DefaultSSHConfigPath
	}
	for _, key := range SSHKeys(ssh) {
		if key.Value == nil {
			continue
		}
		if err := validToken(key.Directive, *key.Value); err != nil {
			r.record("rewrite "+key.Directive, err)
			continue
		}
		r.run(executor.New("sed", "-i", "-E", SSHSubstitution(key.Directive, *key.Value), path))
	}

	service := ssh.Service
	if service == "" {
		service = config.DefaultSSHService
	}
	r.run(executor.New("systemctl", "restart", service))
}

// SSHSubstitution returns the sed expression replacing a directive line,
// commented out or not, with "directive value".
func SSHSubstitution(directive, value string) string {
	return fmt.Sprintf("s|^[#[:space:]]*%s[[:space:]]+.*|%s %s|", directive, directive, value)
}
