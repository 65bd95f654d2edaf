package main

import (
	"fmt"
	"net/http"
	"time"
)

func (app *application) internalServerError(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Errorw("internal error", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusInternalServerError, "the server encountered a problem")
}

func (app *application) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("bad request", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusBadRequest, err.Error())
}

func (app *application) notFoundResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("not found", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusNotFound, "not found")
}

func (app *application) badGatewayResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Errorw("gateway error", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusBadGateway, "payment gateway unavailable, payment marked failed")
}

func (app *application) unauthorizedBasicErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("unauthorized basic error", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	w.Header().Set("WWW-Authenticate", `Basic realm="restricted", charset="UTF-8"`)
	writeJSONError(w, http.StatusUnauthorized, "unauthorized")
}

func (app *application) unauthorizedCallbackResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("callback rejected", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr, "error", err.Error())

	writeJSONError(w, http.StatusUnauthorized, "unauthorized")
}

func (app *application) rateLimitExceededResponse(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
	app.logger.Warnw("rate limit exceeded", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)

	w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter.Seconds()))
	writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded, retry later")
}
