package process

import (
	"fmt"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// Info is a live snapshot of the supervised service process.
type Info struct {
	PID        int32   `json:"pid"`
	PPID       int32   `json:"ppid"`
	Name       string  `json:"name"`
	Status     string  `json:"status"`
	Username   string  `json:"username"`
	CPUPercent float64 `json:"cpu_percent"`
	MemPercent float32 `json:"mem_percent"`
	MemRSS     uint64  `json:"mem_rss"`
	CreateTime int64   `json:"create_time"`
	Cmdline    string  `json:"cmdline"`
	Exe        string  `json:"exe"`
}

// Inspector reads live process state for supervised services.
type Inspector struct{}

// NewInspector creates a new process inspector
func NewInspector() *Inspector {
	return &Inspector{}
}

// Info returns a snapshot of the process with the given PID.
func (i *Inspector) Info(pid int32) (Info, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return Info{}, fmt.Errorf("process not found: %w", err)
	}

	info := Info{PID: p.Pid}

	if ppid, err := p.Ppid(); err == nil {
		info.PPID = ppid
	}
	if name, err := p.Name(); err == nil {
		info.Name = name
	}
	if status, err := p.Status(); err == nil && len(status) > 0 {
		info.Status = status[0]
	}
	if username, err := p.Username(); err == nil {
		info.Username = username
	}
	if cpuPercent, err := p.CPUPercent(); err == nil {
		info.CPUPercent = cpuPercent
	}
	if memPercent, err := p.MemoryPercent(); err == nil {
		info.MemPercent = memPercent
	}
	if memInfo, err := p.MemoryInfo(); err == nil && memInfo != nil {
		info.MemRSS = memInfo.RSS
	}
	if createTime, err := p.CreateTime(); err == nil {
		info.CreateTime = createTime
	}
	if cmdline, err := p.Cmdline(); err == nil {
		info.Cmdline = cmdline
	}
	if exe, err := p.Exe(); err == nil {
		info.Exe = exe
	}

	return info, nil
}

// FindByExe returns the processes whose executable matches path. Used to
// locate the supervised process when the service manager reports no PID.
func (i *Inspector) FindByExe(path string) ([]Info, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	var result []Info
	for _, p := range procs {
		exe, err := p.Exe()
		if err != nil || !strings.EqualFold(exe, path) {
			continue
		}
		if info, err := i.Info(p.Pid); err == nil {
			result = append(result, info)
		}
	}
	return result, nil
}

// Kill terminates a process.
func (i *Inspector) Kill(pid int32, force bool) error {
	p, err := process.NewProcess(pid)
	if err != nil {
		return fmt.Errorf("process not found: %w", err)
	}

	if pid == 1 || pid == int32(os.Getpid()) {
		return fmt.Errorf("cannot kill protected process")
	}

	if force {
		return p.Kill()
	}
	return p.Terminate()
}
