package service

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// classifyScError maps sc.exe output onto the sentinel errors. sc prints
// "[SC] <api> FAILED <code>:" followed by the system message.
func classifyScError(output string) error {
	switch {
	case strings.Contains(output, "FAILED 1073:") ||
		strings.Contains(output, "already exists"):
		return ErrAlreadyExists
	case strings.Contains(output, "FAILED 1060:") ||
		strings.Contains(output, "does not exist as an installed service"):
		return ErrNotFound
	case strings.Contains(output, "FAILED 5:") ||
		strings.Contains(output, "Access is denied"):
		return ErrPermissionDenied
	}
	return nil
}

// classifySystemctlError maps systemctl output onto the sentinel errors.
func classifySystemctlError(output string) error {
	switch {
	case strings.Contains(output, "could not be found") ||
		strings.Contains(output, "not loaded"):
		return ErrNotFound
	case strings.Contains(output, "Access denied") ||
		strings.Contains(output, "Permission denied") ||
		strings.Contains(output, "Interactive authentication required"):
		return ErrPermissionDenied
	}
	return nil
}

// parseScQC fills Info fields from `sc qc` output. Lines look like
// "        START_TYPE         : 2   AUTO_START".
func parseScQC(output string, info *Info) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		key, value, ok := splitScLine(line)
		if !ok {
			continue
		}

		switch key {
		case "DISPLAY_NAME":
			info.DisplayName = value
		case "BINARY_PATH_NAME":
			info.ExecPath, info.Args = splitCommandLine(value)
		case "START_TYPE":
			switch {
			case strings.Contains(value, "AUTO_START"):
				info.StartType = StartAuto
			case strings.Contains(value, "DEMAND_START"):
				info.StartType = StartManual
			case strings.Contains(value, "DISABLED"):
				info.StartType = StartDisabled
			}
		}
	}
}

// parseScFailure fills the restart policy from `sc qfailure` output.
func parseScFailure(output string, policy *RestartPolicy) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		key, value, ok := splitScLine(line)
		if !ok {
			continue
		}

		switch {
		case strings.HasPrefix(key, "RESET_PERIOD"):
			if secs, err := strconv.Atoi(value); err == nil {
				policy.ResetInterval = time.Duration(secs) * time.Second
			}
		case strings.HasPrefix(key, "FAILURE_ACTIONS"):
			if strings.Contains(value, "RESTART") {
				policy.Action = ActionRestart
				policy.Delay = parseScDelay(value)
			}
		}
	}
}

// parseScDelay extracts the delay from a FAILURE_ACTIONS value such as
// "RESTART -- Delay = 5000 milliseconds.".
func parseScDelay(value string) time.Duration {
	idx := strings.Index(value, "Delay =")
	if idx < 0 {
		return 0
	}
	fields := strings.Fields(value[idx+len("Delay ="):])
	if len(fields) == 0 {
		return 0
	}
	ms, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// splitScLine splits an sc output line on the first colon, preserving the
// key's trailing qualifier (e.g. "RESET_PERIOD (in seconds)").
func splitScLine(line string) (key, value string, ok bool) {
	parts := strings.SplitN(line, ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), true
}

// splitCommandLine splits a BINARY_PATH_NAME-style command line into the
// executable and its arguments, honoring double-quoted tokens so that a
// path or argument containing spaces survives a register/query cycle.
func splitCommandLine(s string) (string, []string) {
	fields := splitQuotedFields(s)
	if len(fields) == 0 {
		return "", nil
	}
	if len(fields) == 1 {
		return fields[0], nil
	}
	return fields[0], fields[1:]
}

// splitQuotedFields splits on whitespace, treating a double-quoted run as
// a single field with the quotes stripped.
func splitQuotedFields(s string) []string {
	var fields []string
	s = strings.TrimSpace(s)
	for s != "" {
		if s[0] == '"' {
			if end := strings.Index(s[1:], `"`); end >= 0 {
				fields = append(fields, s[1:end+1])
				s = strings.TrimSpace(s[end+2:])
				continue
			}
		}
		idx := strings.IndexAny(s, " \t")
		if idx < 0 {
			fields = append(fields, s)
			break
		}
		fields = append(fields, s[:idx])
		s = strings.TrimSpace(s[idx+1:])
	}
	return fields
}

// parseSystemdShow fills Info fields from `systemctl show` output, which
// is Property=Value per line.
func parseSystemdShow(output string, info *Info) {
	for _, line := range strings.Split(output, "\n") {
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key, value := parts[0], parts[1]

		switch key {
		case "Description":
			info.Description = value
			info.DisplayName = value
		case "ActiveState":
			switch value {
			case "active":
				info.Status = StatusRunning
			case "inactive":
				info.Status = StatusStopped
			case "failed":
				info.Status = StatusFailed
			default:
				info.Status = StatusUnknown
			}
		case "MainPID":
			if pid, err := strconv.Atoi(value); err == nil {
				info.PID = pid
			}
		case "UnitFileState":
			switch value {
			case "enabled":
				info.StartType = StartAuto
			case "disabled":
				info.StartType = StartDisabled
			default:
				info.StartType = StartManual
			}
		case "Restart":
			if value == "no" {
				info.Restart.Action = ActionNone
			} else {
				info.Restart.Action = ActionRestart
			}
		case "RestartUSec":
			info.Restart.Delay = parseTimespan(value)
		case "StartLimitIntervalUSec":
			info.Restart.ResetInterval = parseTimespan(value)
		case "ExecStart":
			if exe, args, ok := parseExecStart(value); ok {
				info.ExecPath = exe
				info.Args = args
			}
		case "WorkingDirectory":
			info.WorkingDir = value
		case "Environment":
			info.Environment = parseEnvList(value)
		}
	}
}

// parseEnvList parses a systemd Environment property value, which is a
// space-separated list of K=V pairs with quoting around entries whose
// value contains whitespace.
func parseEnvList(value string) map[string]string {
	env := make(map[string]string)
	for _, tok := range splitQuotedFields(value) {
		if k, v, ok := strings.Cut(tok, "="); ok && k != "" {
			env[k] = v
		}
	}
	if len(env) == 0 {
		return nil
	}
	return env
}

// parseExecStart extracts argv from an ExecStart property value such as
// "{ path=/usr/bin/foo ; argv[]=/usr/bin/foo --bar ; ignore_errors=no ... }".
func parseExecStart(value string) (string, []string, bool) {
	idx := strings.Index(value, "argv[]=")
	if idx < 0 {
		return "", nil, false
	}
	rest := value[idx+len("argv[]="):]
	if end := strings.Index(rest, " ;"); end >= 0 {
		rest = rest[:end]
	}
	exe, args := splitCommandLine(rest)
	if exe == "" {
		return "", nil, false
	}
	return exe, args, true
}

// definitionFromPlist rebuilds a Definition from a previously generated
// plist. launchd keeps no queryable registration record beyond the file,
// so a policy rewrite must recover everything from it.
func definitionFromPlist(name, plist string, policy RestartPolicy) (Definition, error) {
	exe, args := parsePlistProgramArguments(plist)
	if exe == "" {
		return Definition{}, fmt.Errorf("plist for %s has no program arguments", name)
	}

	startType := StartManual
	if strings.Contains(plist, "<key>RunAtLoad</key>") {
		startType = StartAuto
	}

	return Definition{
		Name:        name,
		ExecPath:    exe,
		Args:        args,
		WorkingDir:  parsePlistWorkingDirectory(plist),
		Environment: parsePlistEnvironment(plist),
		StartType:   startType,
		Restart:     policy,
	}, nil
}

// parsePlistProgramArguments extracts the ProgramArguments array from a
// generated plist, so a policy rewrite keeps the registered command line.
func parsePlistProgramArguments(plist string) (string, []string) {
	idx := strings.Index(plist, "<key>ProgramArguments</key>")
	if idx < 0 {
		return "", nil
	}
	rest := plist[idx:]
	end := strings.Index(rest, "</array>")
	if end < 0 {
		return "", nil
	}
	rest = rest[:end]

	var argv []string
	for {
		v, ok := cutTag(&rest, "string")
		if !ok {
			break
		}
		argv = append(argv, v)
	}

	if len(argv) == 0 {
		return "", nil
	}
	return argv[0], argv[1:]
}

// parsePlistEnvironment extracts the EnvironmentVariables dict from a
// generated plist.
func parsePlistEnvironment(plist string) map[string]string {
	idx := strings.Index(plist, "<key>EnvironmentVariables</key>")
	if idx < 0 {
		return nil
	}
	rest := plist[idx+len("<key>EnvironmentVariables</key>"):]
	end := strings.Index(rest, "</dict>")
	if end < 0 {
		return nil
	}
	rest = rest[:end]

	env := make(map[string]string)
	for {
		key, ok := cutTag(&rest, "key")
		if !ok {
			break
		}
		value, ok := cutTag(&rest, "string")
		if !ok {
			break
		}
		env[key] = value
	}
	if len(env) == 0 {
		return nil
	}
	return env
}

// parsePlistWorkingDirectory extracts the WorkingDirectory value from a
// generated plist.
func parsePlistWorkingDirectory(plist string) string {
	idx := strings.Index(plist, "<key>WorkingDirectory</key>")
	if idx < 0 {
		return ""
	}
	rest := plist[idx:]
	dir, _ := cutTag(&rest, "string")
	return dir
}

// cutTag returns the unescaped content of the next <tag>...</tag> pair
// and advances s past it.
func cutTag(s *string, tag string) (string, bool) {
	open, closing := "<"+tag+">", "</"+tag+">"
	i := strings.Index(*s, open)
	if i < 0 {
		return "", false
	}
	rest := (*s)[i+len(open):]
	j := strings.Index(rest, closing)
	if j < 0 {
		return "", false
	}
	*s = rest[j+len(closing):]
	return unescapeXML(rest[:j]), true
}

func unescapeXML(s string) string {
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&apos;", "'")
	s = strings.ReplaceAll(s, "&amp;", "&")
	return s
}

// parseTimespan parses systemd timespan output ("5s", "1d", "1min 30s",
// "0"). Units beyond what time.ParseDuration knows are handled here.
func parseTimespan(s string) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" || s == "infinity" {
		return 0
	}

	var total time.Duration
	for _, field := range strings.Fields(s) {
		total += parseTimespanField(field)
	}
	return total
}

func parseTimespanField(field string) time.Duration {
	// systemd writes "min" and "d"/"w" which ParseDuration rejects.
	replacer := strings.NewReplacer("min", "m", "µs", "us")
	if d, err := time.ParseDuration(replacer.Replace(field)); err == nil {
		return d
	}

	for _, unit := range []struct {
		suffix string
		dur    time.Duration
	}{
		{"w", 7 * 24 * time.Hour},
		{"d", 24 * time.Hour},
	} {
		if strings.HasSuffix(field, unit.suffix) {
			if n, err := strconv.ParseFloat(strings.TrimSuffix(field, unit.suffix), 64); err == nil {
				return time.Duration(n * float64(unit.dur))
			}
		}
	}
	return 0
}
