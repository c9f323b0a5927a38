package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioProvider implements Provider on the Twilio REST API
type TwilioProvider struct {
	client    *twilio.RestClient
	validator twilioclient.RequestValidator
	baseURL   string
	validate  bool
	logger    zerolog.Logger
}

// TwilioOpts holds Twilio client configuration
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	// BaseURL is the public URL webhooks are delivered to; signature
	// validation reconstructs the full request URL from it.
	BaseURL string
	// ValidateSignatures toggles webhook signature checks. Keep it on
	// outside local development.
	ValidateSignatures bool
}

// NewTwilio creates the Twilio provider
func NewTwilio(opts TwilioOpts, logger zerolog.Logger) (*TwilioProvider, error) {
	if opts.AccountSID == "" || opts.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: opts.AccountSID,
			Password: opts.AuthToken,
		},
	)

	logger.Info().
		Bool("validate_signatures", opts.ValidateSignatures).
		Msg("twilio provider initialized")

	return &TwilioProvider{
		client:    client,
		validator: twilioclient.NewRequestValidator(opts.AuthToken),
		baseURL:   opts.BaseURL,
		validate:  opts.ValidateSignatures,
		logger:    logger,
	}, nil
}

// ValidateSignature checks the X-Twilio-Signature header against the
// request URL and the posted form parameters
func (p *TwilioProvider) ValidateSignature(r *http.Request, params map[string]string) bool {
	if !p.validate {
		return true
	}

	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		p.logger.Warn().Str("path", r.URL.Path).Msg("webhook missing signature header")
		return false
	}

	url := p.baseURL + r.URL.RequestURI()
	if !p.validator.Validate(url, params, signature) {
		p.logger.Warn().Str("path", r.URL.Path).Msg("webhook signature validation failed")
		return false
	}
	return true
}

// RedirectCall moves a live call to a new instruction URL
func (p *TwilioProvider) RedirectCall(ctx context.Context, callID, url string) error {
	params := &twilioApi.UpdateCallParams{}
	params.SetUrl(url)
	params.SetMethod("POST")

	_, err := p.client.Api.UpdateCall(callID, params)
	if err != nil {
		return fmt.Errorf("failed to redirect call %s: %w", callID, err)
	}

	p.logger.Info().Str("call_id", callID).Str("url", url).Msg("call redirected")
	return nil
}

// NoopProvider accepts every signature and drops call commands. Used
// in development without carrier credentials.
type NoopProvider struct {
	logger zerolog.Logger
}

func NewNoop(logger zerolog.Logger) *NoopProvider {
	return &NoopProvider{logger: logger}
}

func (p *NoopProvider) ValidateSignature(_ *http.Request, _ map[string]string) bool { return true }

func (p *NoopProvider) RedirectCall(_ context.Context, callID, url string) error {
	p.logger.Info().Str("call_id", callID).Str("url", url).Msg("redirect skipped (noop provider)")
	return nil
}
