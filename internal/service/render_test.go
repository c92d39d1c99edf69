package service

import (
	"strings"
	"testing"
	"time"
)

func testDefinition() Definition {
	return Definition{
		Name:        "PersistentRDP",
		DisplayName: "Persistent RDP Session",
		Description: "Keeps a local RDP client session alive",
		ExecPath:    `C:\Windows\System32\mstsc.exe`,
		Args:        []string{"/v:localhost", "/admin", "/noconsentprompt"},
		Environment: map[string]string{"WIDTH": "1024", "HEIGHT": "768"},
		StartType:   StartAuto,
		Restart: RestartPolicy{
			Action:        ActionRestart,
			ResetInterval: 24 * time.Hour,
			Delay:         5 * time.Second,
		},
	}
}

func TestScCreateArgs(t *testing.T) {
	args := scCreateArgs(testDefinition())

	want := []string{
		"create", "PersistentRDP",
		"binPath=", `C:\Windows\System32\mstsc.exe /v:localhost /admin /noconsentprompt`,
		"start=", "auto",
		"DisplayName=", "Persistent RDP Session",
	}
	if len(args) != len(want) {
		t.Fatalf("expected %d args, got %d: %q", len(want), len(args), args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("arg %d: expected %q, got %q", i, want[i], args[i])
		}
	}
}

func TestScCreateArgs_StartTypes(t *testing.T) {
	tests := []struct {
		startType StartType
		want      string
	}{
		{StartAuto, "auto"},
		{StartManual, "demand"},
		{StartDisabled, "disabled"},
		{"", "demand"},
	}
	for _, tt := range tests {
		def := testDefinition()
		def.StartType = tt.startType
		args := scCreateArgs(def)

		found := false
		for i, a := range args {
			if a == "start=" && i+1 < len(args) && args[i+1] == tt.want {
				found = true
			}
		}
		if !found {
			t.Errorf("start type %q: expected start= %q in %q", tt.startType, tt.want, args)
		}
	}
}

func TestScBinPath_QuotesSpacedPath(t *testing.T) {
	def := Definition{
		ExecPath: `C:\Program Files\App\app.exe`,
		Args:     []string{"--serve"},
	}
	got := scBinPath(def)
	want := `"C:\Program Files\App\app.exe" --serve`
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestScBinPath_SpacedArgRoundTrip(t *testing.T) {
	def := Definition{
		ExecPath: `C:\Windows\System32\mstsc.exe`,
		Args:     []string{"/v:localhost", `C:\rdp profiles\default.rdp`},
	}

	got := scBinPath(def)
	want := `C:\Windows\System32\mstsc.exe /v:localhost "C:\rdp profiles\default.rdp"`
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	exe, args := splitCommandLine(got)
	if exe != def.ExecPath {
		t.Errorf("expected exe %q, got %q", def.ExecPath, exe)
	}
	if len(args) != 2 || args[1] != def.Args[1] {
		t.Errorf("unexpected args %q", args)
	}
}

func TestScFailureArgs(t *testing.T) {
	policy := RestartPolicy{
		Action:        ActionRestart,
		ResetInterval: 24 * time.Hour,
		Delay:         5 * time.Second,
	}
	args := scFailureArgs("PersistentRDP", policy)

	want := []string{"failure", "PersistentRDP", "reset=", "86400", "actions=", "restart/5000"}
	if len(args) != len(want) {
		t.Fatalf("expected %d args, got %d: %q", len(want), len(args), args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("arg %d: expected %q, got %q", i, want[i], args[i])
		}
	}
}

func TestScFailureArgs_NoAction(t *testing.T) {
	args := scFailureArgs("svc", RestartPolicy{Action: ActionNone})

	last := args[len(args)-1]
	if last != "\"\"" {
		t.Errorf("expected empty actions value, got %q", last)
	}
}

func TestRenderSystemdUnit(t *testing.T) {
	def := testDefinition()
	def.ExecPath = "/usr/bin/rdp-keeper"
	def.Args = []string{"--target", "localhost"}
	def.WorkingDir = "/var/lib/rdp"

	unit := renderSystemdUnit(def)

	for _, want := range []string{
		"[Unit]",
		"Description=Keeps a local RDP client session alive",
		"StartLimitIntervalSec=86400",
		"[Service]",
		"Type=simple",
		"ExecStart=/usr/bin/rdp-keeper --target localhost",
		"WorkingDirectory=/var/lib/rdp",
		`Environment="HEIGHT=768"`,
		`Environment="WIDTH=1024"`,
		"Restart=on-failure",
		"RestartSec=5",
		"[Install]",
		"WantedBy=multi-user.target",
	} {
		if !strings.Contains(unit, want) {
			t.Errorf("unit missing %q:\n%s", want, unit)
		}
	}
}

func TestRenderSystemdUnit_NoRestart(t *testing.T) {
	def := testDefinition()
	def.Restart = RestartPolicy{Action: ActionNone}

	unit := renderSystemdUnit(def)

	if !strings.Contains(unit, "Restart=no") {
		t.Errorf("expected Restart=no:\n%s", unit)
	}
	if strings.Contains(unit, "RestartSec") {
		t.Errorf("unexpected RestartSec:\n%s", unit)
	}
	if strings.Contains(unit, "StartLimitIntervalSec") {
		t.Errorf("unexpected StartLimitIntervalSec:\n%s", unit)
	}
}

func TestExecStartLine_QuotesSpacedArgs(t *testing.T) {
	def := Definition{
		ExecPath: "/usr/bin/app",
		Args:     []string{"--name", "hello world"},
	}
	got := execStartLine(def)
	want := `/usr/bin/app --name "hello world"`
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestRenderLaunchdPlist(t *testing.T) {
	def := testDefinition()
	def.ExecPath = "/usr/local/bin/rdp-keeper"
	def.Args = []string{"--target", "localhost"}

	plist := renderLaunchdPlist(def)

	for _, want := range []string{
		"<key>Label</key>",
		"<string>PersistentRDP</string>",
		"<key>ProgramArguments</key>",
		"<string>/usr/local/bin/rdp-keeper</string>",
		"<string>--target</string>",
		"<key>EnvironmentVariables</key>",
		"<key>WIDTH</key>",
		"<string>1024</string>",
		"<key>RunAtLoad</key>",
		"<key>KeepAlive</key>",
		"<key>ThrottleInterval</key>",
		"<integer>5</integer>",
	} {
		if !strings.Contains(plist, want) {
			t.Errorf("plist missing %q:\n%s", want, plist)
		}
	}
}

func TestRenderLaunchdPlist_EscapesXML(t *testing.T) {
	def := Definition{
		Name:     "a<b&c",
		ExecPath: "/bin/true",
	}
	plist := renderLaunchdPlist(def)

	if !strings.Contains(plist, "<string>a&lt;b&amp;c</string>") {
		t.Errorf("expected escaped label:\n%s", plist)
	}
}

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{5 * time.Second, "5"},
		{24 * time.Hour, "86400"},
		{1500 * time.Millisecond, "1.5"},
	}
	for _, tt := range tests {
		if got := formatSeconds(tt.d); got != tt.want {
			t.Errorf("formatSeconds(%v): expected %q, got %q", tt.d, tt.want, got)
		}
	}
}
