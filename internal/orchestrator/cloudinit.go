package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/wopr-systems/beacon-orchestrator/internal/job"
)

// InstallerURL is the fixed bootstrap script location every generated
// cloud-init document downloads and executes (spec.md §6.1).
const InstallerURL = "https://install.wopr.systems/v1/bootstrap.sh"

// GenerateCloudInit renders the #cloud-config YAML document embedded in a
// new instance's user-data: a bootstrap.json fact file, an install
// script that invokes the fixed bootstrap URL, and a runcmd block that
// locks the firewall down before running it. Grounded on
// original_source/wopr-installer/control_plane/orchestrator.py's
// _generate_cloud_init, translated from an f-string into a Go builder.
func GenerateCloudInit(j *job.Job, baseDomain string, at time.Time) string {
	domain := fmt.Sprintf("%s.%s", j.WOPRSubdomain, baseDomain)

	var b strings.Builder
	fmt.Fprintf(&b, "#cloud-config\n")
	fmt.Fprintf(&b, "# Generated: %s\n", at.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "# Job ID: %s\n\n", j.ID)
	b.WriteString("package_update: true\n")
	b.WriteString("package_upgrade: true\n\n")
	b.WriteString("packages:\n")
	for _, pkg := range []string{"curl", "wget", "git", "jq", "uuid-runtime", "podman", "iptables", "iptables-persistent"} {
		fmt.Fprintf(&b, "  - %s\n", pkg)
	}
	b.WriteString("\nwrite_files:\n")
	fmt.Fprintf(&b, "  - path: /etc/wopr/bootstrap.json\n")
	fmt.Fprintf(&b, "    permissions: '0600'\n")
	fmt.Fprintf(&b, "    content: |\n")
	fmt.Fprintf(&b, "      {\n")
	fmt.Fprintf(&b, "        \"job_id\": %q,\n", j.ID)
	fmt.Fprintf(&b, "        \"customer_id\": %q,\n", j.CustomerID)
	fmt.Fprintf(&b, "        \"bundle\": %q,\n", j.Bundle)
	fmt.Fprintf(&b, "        \"storage_tier\": %d,\n", j.StorageTier)
	fmt.Fprintf(&b, "        \"domain\": %q,\n", domain)
	fmt.Fprintf(&b, "        \"custom_domain\": %q,\n", j.CustomDomain)
	fmt.Fprintf(&b, "        \"provisioned_at\": %q\n", at.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "      }\n\n")

	fmt.Fprintf(&b, "  - path: /opt/wopr/install.sh\n")
	fmt.Fprintf(&b, "    permissions: '0755'\n")
	fmt.Fprintf(&b, "    content: |\n")
	b.WriteString("      #!/bin/bash\n")
	b.WriteString("      set -euo pipefail\n\n")
	b.WriteString("      exec > >(tee -a /var/log/wopr/install.log) 2>&1\n")
	b.WriteString("      echo \"Starting WOPR installation at $(date)\"\n\n")
	fmt.Fprintf(&b, "      curl -fsSL %s | bash -s -- \\\n", InstallerURL)
	fmt.Fprintf(&b, "        --bundle %s \\\n", j.Bundle)
	fmt.Fprintf(&b, "        --domain %s \\\n", domain)
	b.WriteString("        --non-interactive \\\n")
	b.WriteString("        --confirm-all\n\n")
	b.WriteString("      echo \"WOPR installation complete at $(date)\"\n\n")

	b.WriteString("runcmd:\n")
	for _, cmd := range runcmdLines() {
		fmt.Fprintf(&b, "  - %s\n", cmd)
	}
	b.WriteString("\nfinal_message: \"WOPR installation complete after $UPTIME seconds\"\n")

	return b.String()
}

// runcmdLines is the fixed firewall-then-install sequence spec.md §6.1
// requires: accept loopback, established/related, icmp, tcp/22, tcp/80,
// tcp/443, tcp/8443; drop everything else; persist; run the installer.
func runcmdLines() []string {
	return []string{
		"mkdir -p /var/log/wopr",
		"mkdir -p /etc/iptables",
		"iptables -F INPUT",
		"iptables -A INPUT -i lo -j ACCEPT",
		"iptables -A INPUT -m state --state ESTABLISHED,RELATED -j ACCEPT",
		"iptables -A INPUT -p icmp -j ACCEPT",
		"iptables -A INPUT -p tcp --dport 22 -j ACCEPT",
		"iptables -A INPUT -p tcp --dport 80 -j ACCEPT",
		"iptables -A INPUT -p tcp --dport 443 -j ACCEPT",
		"iptables -A INPUT -p tcp --dport 8443 -j ACCEPT",
		"iptables -A INPUT -j DROP",
		"iptables-save > /etc/iptables/rules.v4",
		"ip6tables -F INPUT",
		"ip6tables -A INPUT -i lo -j ACCEPT",
		"ip6tables -A INPUT -m state --state ESTABLISHED,RELATED -j ACCEPT",
		"ip6tables -A INPUT -p icmpv6 -j ACCEPT",
		"ip6tables -A INPUT -p tcp --dport 22 -j ACCEPT",
		"ip6tables -A INPUT -p tcp --dport 80 -j ACCEPT",
		"ip6tables -A INPUT -p tcp --dport 443 -j ACCEPT",
		"ip6tables -A INPUT -p tcp --dport 8443 -j ACCEPT",
		"ip6tables -A INPUT -j DROP",
		"ip6tables-save > /etc/iptables/rules.v6",
		"/opt/wopr/install.sh",
	}
}

// subdomainFor synthesizes a job's beacon subdomain: <bundle>-<8 hex
// chars of the job id>, matching the original's wopr_subdomain naming.
func subdomainFor(j *job.Job) string {
	short := j.ID
	if len(short) > 8 {
		short = strings.ReplaceAll(short, "-", "")
		if len(short) > 8 {
			short = short[:8]
		}
	}
	return fmt.Sprintf("%s-%s", j.Bundle, short)
}

// instanceNameFor synthesizes the provider-facing instance name:
// wopr-<subdomain>.
func instanceNameFor(subdomain string) string {
	return "wopr-" + subdomain
}
