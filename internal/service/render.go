package service

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// renderSystemdUnit generates a systemd unit file for the definition.
// The restart policy maps onto native unit directives: Delay becomes
// RestartSec, ResetInterval becomes StartLimitIntervalSec.
func renderSystemdUnit(def Definition) string {
	var b strings.Builder

	b.WriteString("[Unit]\n")
	desc := def.Description
	if desc == "" {
		desc = def.DisplayName
	}
	if desc != "" {
		fmt.Fprintf(&b, "Description=%s\n", desc)
	}
	if def.Restart.ResetInterval > 0 {
		fmt.Fprintf(&b, "StartLimitIntervalSec=%d\n", int(def.Restart.ResetInterval.Seconds()))
	}

	b.WriteString("\n[Service]\n")
	b.WriteString("Type=simple\n")
	fmt.Fprintf(&b, "ExecStart=%s\n", execStartLine(def))
	if def.WorkingDir != "" {
		fmt.Fprintf(&b, "WorkingDirectory=%s\n", def.WorkingDir)
	}
	for _, k := range sortedKeys(def.Environment) {
		fmt.Fprintf(&b, "Environment=\"%s=%s\"\n", k, def.Environment[k])
	}
	if def.Restart.Action == ActionRestart {
		b.WriteString("Restart=on-failure\n")
		if def.Restart.Delay > 0 {
			fmt.Fprintf(&b, "RestartSec=%s\n", formatSeconds(def.Restart.Delay))
		}
	} else {
		b.WriteString("Restart=no\n")
	}

	b.WriteString("\n[Install]\n")
	b.WriteString("WantedBy=multi-user.target\n")

	return b.String()
}

// execStartLine builds the ExecStart value, quoting arguments that
// contain whitespace.
func execStartLine(def Definition) string {
	parts := []string{def.ExecPath}
	for _, a := range def.Args {
		if strings.ContainsAny(a, " \t") {
			a = `"` + a + `"`
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// renderLaunchdPlist generates a launchd plist for the definition. The
// restart policy maps onto KeepAlive and ThrottleInterval; launchd has no
// failure-counter reset so ResetInterval has no equivalent there.
func renderLaunchdPlist(def Definition) string {
	var b strings.Builder

	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">` + "\n")
	b.WriteString("<plist version=\"1.0\">\n<dict>\n")

	fmt.Fprintf(&b, "\t<key>Label</key>\n\t<string>%s</string>\n", escapeXML(def.Name))

	b.WriteString("\t<key>ProgramArguments</key>\n\t<array>\n")
	fmt.Fprintf(&b, "\t\t<string>%s</string>\n", escapeXML(def.ExecPath))
	for _, a := range def.Args {
		fmt.Fprintf(&b, "\t\t<string>%s</string>\n", escapeXML(a))
	}
	b.WriteString("\t</array>\n")

	if def.WorkingDir != "" {
		fmt.Fprintf(&b, "\t<key>WorkingDirectory</key>\n\t<string>%s</string>\n", escapeXML(def.WorkingDir))
	}

	if len(def.Environment) > 0 {
		b.WriteString("\t<key>EnvironmentVariables</key>\n\t<dict>\n")
		for _, k := range sortedKeys(def.Environment) {
			fmt.Fprintf(&b, "\t\t<key>%s</key>\n\t\t<string>%s</string>\n", escapeXML(k), escapeXML(def.Environment[k]))
		}
		b.WriteString("\t</dict>\n")
	}

	if def.StartType == StartAuto {
		b.WriteString("\t<key>RunAtLoad</key>\n\t<true/>\n")
	}
	if def.Restart.Action == ActionRestart {
		b.WriteString("\t<key>KeepAlive</key>\n\t<true/>\n")
		if def.Restart.Delay > 0 {
			fmt.Fprintf(&b, "\t<key>ThrottleInterval</key>\n\t<integer>%d</integer>\n", int(def.Restart.Delay.Seconds()))
		}
	}

	b.WriteString("</dict>\n</plist>\n")
	return b.String()
}

// escapeXML escapes special characters for plist content.
func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, `"`, "&quot;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	return s
}

// scCreateArgs builds the argument list for `sc create`. sc.exe expects
// the option name and value as separate tokens ("binPath=" then the
// value).
func scCreateArgs(def Definition) []string {
	args := []string{"create", def.Name, "binPath=", scBinPath(def)}

	switch def.StartType {
	case StartAuto:
		args = append(args, "start=", "auto")
	case StartDisabled:
		args = append(args, "start=", "disabled")
	default:
		args = append(args, "start=", "demand")
	}

	if def.DisplayName != "" {
		args = append(args, "DisplayName=", def.DisplayName)
	}
	return args
}

// scBinPath builds the BINARY_PATH_NAME value, quoting the executable and
// any argument containing whitespace so the value survives an `sc qc`
// round trip.
func scBinPath(def Definition) string {
	path := def.ExecPath
	if strings.ContainsAny(path, " \t") {
		path = `"` + path + `"`
	}
	parts := []string{path}
	for _, a := range def.Args {
		if strings.ContainsAny(a, " \t") {
			a = `"` + a + `"`
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// scFailureArgs builds the argument list for `sc failure`, which
// configures the service recovery actions.
func scFailureArgs(name string, policy RestartPolicy) []string {
	args := []string{
		"failure", name,
		"reset=", strconv.Itoa(int(policy.ResetInterval.Seconds())),
	}
	if policy.Action == ActionRestart {
		args = append(args, "actions=", fmt.Sprintf("restart/%d", policy.Delay.Milliseconds()))
	} else {
		args = append(args, "actions=", "\"\"")
	}
	return args
}

// formatSeconds renders a duration as systemd-style seconds, keeping
// sub-second precision when present.
func formatSeconds(d time.Duration) string {
	secs := d.Seconds()
	if secs == float64(int64(secs)) {
		return strconv.FormatInt(int64(secs), 10)
	}
	return strconv.FormatFloat(secs, 'f', -1, 64)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
