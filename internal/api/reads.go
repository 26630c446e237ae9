package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) stats(c *gin.Context) {
	data, ok := s.send(c, "summary")
	if !ok {
		return
	}
	summary := firstRecord(data, "SUMMARY")
	if summary == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgInvalidResponse})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"elapsed":            or(summary, "Elapsed", 0),
		"mhsAv":              or(summary, "MHS av", 0),
		"mhs5s":              or(summary, "MHS 5s", 0),
		"mhs1m":              or(summary, "MHS 1m", 0),
		"mhs5m":              or(summary, "MHS 5m", 0),
		"mhs15m":             or(summary, "MHS 15m", 0),
		"foundBlocks":        or(summary, "Found Blocks", 0),
		"getworks":           or(summary, "Getworks", 0),
		"accepted":           or(summary, "Accepted", 0),
		"rejected":           or(summary, "Rejected", 0),
		"hardwareErrors":     or(summary, "Hardware Errors", 0),
		"utility":            or(summary, "Utility", 0),
		"discarded":          or(summary, "Discarded", 0),
		"stale":              or(summary, "Stale", 0),
		"getFailures":        or(summary, "Get Failures", 0),
		"localWork":          or(summary, "Local Work", 0),
		"remoteFailures":     or(summary, "Remote Failures", 0),
		"networkBlocks":      or(summary, "Network Blocks", 0),
		"totalMh":            or(summary, "Total MH", 0),
		"workUtility":        or(summary, "Work Utility", 0),
		"difficultyAccepted": or(summary, "Difficulty Accepted", 0),
		"difficultyRejected": or(summary, "Difficulty Rejected", 0),
		"difficultyStale":    or(summary, "Difficulty Stale", 0),
		"bestShare":          or(summary, "Best Share", 0),
	})
}

// rawSection returns the named record list unchanged, or [] when absent.
func (s *Server) rawSection(command, section string) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, ok := s.send(c, command)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, mapRecords(data, section, func(rec map[string]any) any { return rec }))
	}
}

func (s *Server) pools(c *gin.Context) {
	data, ok := s.send(c, "pools")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, mapRecords(data, "POOLS", func(pool map[string]any) any {
		return gin.H{
			"url":           or(pool, "URL", ""),
			"status":        or(pool, "Status", "Unknown"),
			"priority":      or(pool, "Priority", 0),
			"user":          or(pool, "User", ""),
			"accepted":      or(pool, "Accepted", 0),
			"rejected":      or(pool, "Rejected", 0),
			"frequency":     or(pool, "Frequency", 0),
			"stale":         or(pool, "Stale", 0),
			"lastShareTime": or(pool, "Last Share Time", 0),
		}
	}))
}

func (s *Server) config(c *gin.Context) {
	data, ok := s.send(c, "config")
	if !ok {
		return
	}
	cfg := firstRecord(data, "CONFIG")
	c.JSON(http.StatusOK, gin.H{
		"ascCount":    or(cfg, "ASC Count", 0),
		"pgaCount":    or(cfg, "PGA Count", 0),
		"poolCount":   or(cfg, "Pool Count", 0),
		"strategy":    or(cfg, "Strategy", ""),
		"logInterval": or(cfg, "Log Interval", 0),
		"deviceCode":  or(cfg, "Device Code", ""),
		"os":          or(cfg, "OS", ""),
		"hotplug":     or(cfg, "Hotplug", 0),
	})
}

func (s *Server) coin(c *gin.Context) {
	data, ok := s.send(c, "coin")
	if !ok {
		return
	}
	coin := firstRecord(data, "COIN")
	c.JSON(http.StatusOK, gin.H{
		"hashMethod":        or(coin, "Hash Method", ""),
		"currentBlockTime":  or(coin, "Current Block Time", 0),
		"currentBlockHash":  or(coin, "Current Block Hash", ""),
		"lp":                or(coin, "LP", false),
		"networkDifficulty": or(coin, "Network Difficulty", 0),
	})
}

func (s *Server) usbStats(c *gin.Context) {
	data, ok := s.send(c, "usbstats")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, mapRecords(data, "USBSTATS", func(usb map[string]any) any {
		return gin.H{
			"name":              or(usb, "Name", ""),
			"id":                or(usb, "ID", 0),
			"stat":              or(usb, "Stat", ""),
			"seq":               or(usb, "Seq", 0),
			"modes":             or(usb, "Modes", ""),
			"count":             or(usb, "Count", 0),
			"totalDelay":        or(usb, "Total Delay", 0),
			"minDelay":          or(usb, "Min Delay", 0),
			"maxDelay":          or(usb, "Max Delay", 0),
			"timeoutCount":      or(usb, "Timeout Count", 0),
			"timeoutTotalDelay": or(usb, "Timeout Total Delay", 0),
			"timeoutMinDelay":   or(usb, "Timeout Min Delay", 0),
			"timeoutMaxDelay":   or(usb, "Timeout Max Delay", 0),
			"errorCount":        or(usb, "Error Count", 0),
			"errorTotalDelay":   or(usb, "Error Total Delay", 0),
			"errorMinDelay":     or(usb, "Error Min Delay", 0),
			"errorMaxDelay":     or(usb, "Error Max Delay", 0),
			"firstCommand":      or(usb, "First Command", 0),
			"lastCommand":       or(usb, "Last Command", 0),
			"firstTimeout":      or(usb, "First Timeout", 0),
			"lastTimeout":       or(usb, "Last Timeout", 0),
			"firstError":        or(usb, "First Error", 0),
			"lastError":         or(usb, "Last Error", 0),
		}
	}))
}

func (s *Server) devDetails(c *gin.Context) {
	data, ok := s.send(c, "devdetails")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, mapRecords(data, "DEVDETAILS", func(dev map[string]any) any {
		return gin.H{
			"devDetails": or(dev, "DEVDETAILS", 0),
			"name":       or(dev, "Name", ""),
			"id":         or(dev, "ID", 0),
			"driver":     or(dev, "Driver", ""),
			"kernel":     or(dev, "Kernel", ""),
			"model":      or(dev, "Model", ""),
			"devicePath": or(dev, "Device Path", ""),
		}
	}))
}

func (s *Server) version(c *gin.Context) {
	data, ok := s.send(c, "version")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"version": mapRecords(data, "VERSION", func(v map[string]any) any {
			out := gin.H{}
			copyPresent(out, "cgminer", v, "CGMiner")
			copyPresent(out, "api", v, "API")
			return out
		}),
	})
}

// camelSection re-keys every record of section to camelCase.
func (s *Server) camelSection(command, section string, stripStar bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, ok := s.send(c, command)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{
			command: mapRecords(data, section, func(rec map[string]any) any {
				out := make(gin.H, len(rec))
				for key, value := range rec {
					out[camelKey(key, stripStar)] = value
				}
				return out
			}),
		})
	}
}
