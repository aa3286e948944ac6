package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// SessionRegion returns the ambient session default region, or "" when none is configured.
// Precedence: AWS_REGION, AWS_DEFAULT_REGION, then the "region" key of the active profile
// (AWS_PROFILE, else "default") in the shared config file (AWS_CONFIG_FILE, else ~/.aws/config).
func SessionRegion() string {
	return SessionRegionFor("")
}

// SessionRegionFor is SessionRegion with profile taking the place of AWS_PROFILE when non-empty.
func SessionRegionFor(profile string) string {
	if region := strings.TrimSpace(os.Getenv("AWS_REGION")); region != "" {
		return region
	}
	if region := strings.TrimSpace(os.Getenv("AWS_DEFAULT_REGION")); region != "" {
		return region
	}

	if profile == "" {
		profile = os.Getenv("AWS_PROFILE")
	}
	if profile == "" {
		profile = DefaultProfile
	}
	path := os.Getenv("AWS_CONFIG_FILE")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		path = filepath.Join(home, ".aws", "config")
	}
	return profileRegion(path, profile)
}

// profileRegion reads the region of profile from an INI-style shared config file.
// Missing or unreadable files yield "".
func profileRegion(path, profile string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	want := "profile " + profile
	if profile == DefaultProfile {
		want = DefaultProfile
	}

	inProfile := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section := strings.TrimSpace(line[1 : len(line)-1])
			inProfile = section == want
			continue
		}
		if !inProfile {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if ok && strings.TrimSpace(key) == "region" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
