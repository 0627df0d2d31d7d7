package utils

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"classroom-attendance/internal/core/dispatch"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	log "github.com/sirupsen/logrus"
)

var (
	lastCPUTime        time.Time
	lastCPUUsage       float64
	cpuUsageMutex      sync.Mutex
	cpuUsageSampleRate = 500 * time.Millisecond
)

// SystemStats enthält aktuelle System- und Anwendungsstatistiken
type SystemStats struct {
	// CPU-Statistiken
	NumCPU     int     `json:"num_cpu"`
	GoRoutines int     `json:"go_routines"`
	CPUUsage   float64 `json:"cpu_usage"`

	// Speicher
	MemoryUsage   uint64  `json:"memory_usage"` // RSS des Prozesses
	MemoryAlloc   uint64  `json:"memory_alloc"`
	MemorySys     uint64  `json:"memory_sys"`
	SystemMemUsed float64 `json:"system_memory_used_percent"`

	// Überwachung
	ActiveSessions int `json:"active_sessions"`
	SSEClients     int `json:"sse_clients"`

	// Benachrichtigungs-Pool
	Notifications *dispatch.Stats `json:"notifications,omitempty"`

	// Zeitstempel
	Timestamp time.Time `json:"timestamp"`
}

// FormatBytes formatiert Bytes in lesbare Einheiten (KB, MB, GB)
func FormatBytes(bytes uint64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d Bytes", bytes)
	}
}

// GetCPUUsage berechnet die CPU-Auslastung mit gopsutil
func GetCPUUsage() float64 {
	cpuUsageMutex.Lock()
	defer cpuUsageMutex.Unlock()

	// Wenn weniger als 500ms seit dem letzten Sampling vergangen sind,
	// den gecachten Wert zurückgeben
	if time.Since(lastCPUTime) < cpuUsageSampleRate && lastCPUTime.Unix() > 0 {
		return lastCPUUsage
	}

	percentages, err := cpu.Percent(200*time.Millisecond, false)
	if err != nil {
		log.Warnf("Failed to measure CPU usage: %v", err)
		return 0.0
	}

	var usage float64
	if len(percentages) > 0 {
		usage = percentages[0] // Gesamtauslastung aller Kerne
	}

	lastCPUTime = time.Now()
	lastCPUUsage = usage
	return usage
}

// processRSS liefert den residenten Speicher des eigenen Prozesses
func processRSS() uint64 {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	info, err := p.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return info.RSS
}

// AppStats sind die Zähler der Anwendung, die in die Systemstatistik einfließen
type AppStats struct {
	ActiveSessions int
	SSEClients     int
	Notifications  *dispatch.Stats
}

// GetSystemStats erfasst aktuelle System- und Anwendungsstatistiken
func GetSystemStats(app AppStats) *SystemStats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := &SystemStats{
		NumCPU:         runtime.NumCPU(),
		GoRoutines:     runtime.NumGoroutine(),
		CPUUsage:       GetCPUUsage(),
		MemoryUsage:    processRSS(),
		MemoryAlloc:    memStats.Alloc,
		MemorySys:      memStats.Sys,
		ActiveSessions: app.ActiveSessions,
		SSEClients:     app.SSEClients,
		Notifications:  app.Notifications,
		Timestamp:      time.Now(),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		stats.SystemMemUsed = vm.UsedPercent
	}

	return stats
}
