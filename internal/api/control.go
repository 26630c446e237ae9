package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) reply(c *gin.Context, command string) {
	data, ok := s.send(c, command)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "response": data})
}

func (s *Server) command(c *gin.Context) {
	req, ok := body(c)
	if !ok {
		return
	}
	if !truthy(req["command"]) {
		badRequest(c, "command required")
		return
	}

	command := paramString(req["command"])
	if truthy(req["parameter"]) {
		command += "|" + paramString(req["parameter"])
	}
	s.reply(c, command)
}

// fixed sends a parameterless command.
func (s *Server) fixed(command string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.reply(c, command)
	}
}

func (s *Server) save(c *gin.Context) {
	req, ok := body(c)
	if !ok {
		return
	}
	command := "save"
	if truthy(req["filename"]) {
		command += "|" + paramString(req["filename"])
	}
	s.reply(c, command)
}

func (s *Server) addPool(c *gin.Context) {
	req, ok := body(c)
	if !ok {
		return
	}
	if !truthy(req["url"]) || !truthy(req["user"]) || !truthy(req["pass"]) {
		badRequest(c, "url, user, and pass are required")
		return
	}
	s.reply(c, "addpool|"+joinParams(req["url"], req["user"], req["pass"]))
}

// poolAction sends verb|poolId. Only a missing poolId is rejected.
func (s *Server) poolAction(verb string) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := body(c)
		if !ok {
			return
		}
		poolID, present := req["poolId"]
		if !present {
			badRequest(c, "poolId is required")
			return
		}
		s.reply(c, verb+"|"+paramString(poolID))
	}
}

func (s *Server) poolPriority(c *gin.Context) {
	req, ok := body(c)
	if !ok {
		return
	}
	priorities, isArray := req["priorities"].([]any)
	if !isArray {
		badRequest(c, "priorities must be an array")
		return
	}
	s.reply(c, "poolpriority|"+joinParams(priorities...))
}

func (s *Server) deviceAction(verb string) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := body(c)
		if !ok {
			return
		}
		deviceID, present := req["deviceId"]
		if !present {
			badRequest(c, "deviceId is required")
			return
		}
		s.reply(c, verb+"|"+paramString(deviceID))
	}
}

func (s *Server) deviceSet(c *gin.Context) {
	req, ok := body(c)
	if !ok {
		return
	}
	deviceID, present := req["deviceId"]
	if !present || !truthy(req["option"]) {
		badRequest(c, "deviceId and option are required")
		return
	}

	params := []any{deviceID, req["option"]}
	if value, hasValue := req["value"]; hasValue {
		params = append(params, value)
	}
	s.reply(c, "ascset|"+joinParams(params...))
}

func (s *Server) deviceFrequency(c *gin.Context) {
	req, ok := body(c)
	if !ok {
		return
	}
	deviceID, present := req["deviceId"]
	if !present || !truthy(req["frequency"]) {
		badRequest(c, "deviceId and frequency are required")
		return
	}
	s.reply(c, "ascset|"+joinParams(deviceID, "freq", req["frequency"]))
}

func (s *Server) setConfig(c *gin.Context) {
	req, ok := body(c)
	if !ok {
		return
	}
	value, present := req["value"]
	if !truthy(req["name"]) || !present {
		badRequest(c, "name and value are required")
		return
	}
	s.reply(c, "setconfig|"+joinParams(req["name"], value))
}

func joinParams(values ...any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = paramString(v)
	}
	return strings.Join(parts, ",")
}
