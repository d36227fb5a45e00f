package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/text/language"

	"github.com/pscheid92/pagegate/internal/adapter/graph"
	"github.com/pscheid92/pagegate/internal/domain"
)

// Provisioning modes.
const (
	ModeWebhook      = "webhook"
	ModeProfile      = "profile"
	ModePersonas     = "personas"
	ModeDomains      = "domains"
	ModePrivateReply = "private-reply"
	ModeAll          = "all"
)

// Modes lists every accepted provisioning mode.
var Modes = []string{ModeWebhook, ModeProfile, ModePersonas, ModeDomains, ModePrivateReply, ModeAll}

// PayloadGetStarted is sent as a postback when a user taps Get Started.
const PayloadGetStarted = "GET_STARTED"

// platformLocales maps catalog languages onto Messenger profile locales.
var platformLocales = map[language.Tag]string{
	language.English: "default",
	language.German:  "de_DE",
	language.French:  "fr_FR",
	language.Spanish: "es_ES",
}

// ProvisioningClient is the part of the platform client that configures
// the app and its pages.
type ProvisioningClient interface {
	SubscribeWebhook(ctx context.Context, extraFields []string) error
	SubscribeApp(ctx context.Context, extraFields []string) []graph.PageResult
	SetMessengerProfile(ctx context.Context, body any) []graph.PageResult
	ListPersonas(ctx context.Context) []graph.PageResult
	CreatePersona(ctx context.Context, pageID, name, pictureURL string) (string, error)
}

type ProvisionerConfig struct {
	ShopURL            string
	WhitelistedDomains []string
	Personas           *domain.PersonaRegistry
}

// Step is the outcome of one provisioning action.
type Step struct {
	Name    string
	Results []graph.PageResult
	Err     error

	// PersonaIDs maps page ids to persona names to the ids found or created
	// on that page. Persona ids are page-scoped.
	PersonaIDs map[string]map[string]string
}

// OK reports whether the step and every per-page call succeeded.
func (s Step) OK() bool {
	if s.Err != nil {
		return false
	}
	for _, r := range s.Results {
		if !r.OK {
			return false
		}
	}
	return true
}

// Provisioner runs the one-shot setup calls for the app and its pages.
type Provisioner struct {
	client ProvisioningClient
	cfg    ProvisionerConfig
}

func NewProvisioner(client ProvisioningClient, cfg ProvisionerConfig) *Provisioner {
	return &Provisioner{client: client, cfg: cfg}
}

// Run executes mode. "all" covers webhook, profile, personas and domains;
// the page feed subscription is only set up on request.
func (p *Provisioner) Run(ctx context.Context, mode string) ([]Step, error) {
	if !slices.Contains(Modes, mode) {
		return nil, fmt.Errorf("unknown provisioning mode %q (want one of %s)", mode, strings.Join(Modes, ", "))
	}

	var steps []Step
	if mode == ModeWebhook || mode == ModeAll {
		steps = append(steps, p.subscribe(ctx, "webhook", nil)...)
	}
	if mode == ModeProfile || mode == ModeAll {
		steps = append(steps, Step{Name: "messenger profile", Results: p.client.SetMessengerProfile(ctx, p.messengerProfile())})
	}
	if mode == ModePersonas || mode == ModeAll {
		steps = append(steps, p.personas(ctx))
	}
	if mode == ModeDomains || mode == ModeAll {
		steps = append(steps, p.domains(ctx))
	}
	if mode == ModePrivateReply {
		steps = append(steps, p.subscribe(ctx, "page feed", []string{domain.FieldFeed})...)
	}
	return steps, nil
}

func (p *Provisioner) subscribe(ctx context.Context, name string, extraFields []string) []Step {
	return []Step{
		{Name: name + " subscription", Err: p.client.SubscribeWebhook(ctx, extraFields)},
		{Name: name + " page subscription", Results: p.client.SubscribeApp(ctx, extraFields)},
	}
}

func (p *Provisioner) domains(ctx context.Context) Step {
	if len(p.cfg.WhitelistedDomains) == 0 {
		return Step{Name: "whitelisted domains", Err: errors.New("no domains configured, set APP_URL or SHOP_URL")}
	}
	body := map[string]any{"whitelisted_domains": p.cfg.WhitelistedDomains}
	return Step{Name: "whitelisted domains", Results: p.client.SetMessengerProfile(ctx, body)}
}

// personas lists the personas of every page and creates the registered
// ones that are missing.
func (p *Provisioner) personas(ctx context.Context) Step {
	step := Step{Name: "personas", PersonaIDs: make(map[string]map[string]string)}
	step.Results = p.client.ListPersonas(ctx)

	for _, res := range step.Results {
		if !res.OK {
			continue
		}

		existing := make(map[string]string, len(res.Personas))
		for _, persona := range res.Personas {
			existing[persona.Name] = persona.ID
		}
		ids := make(map[string]string)
		step.PersonaIDs[res.PageID] = ids

		for _, name := range p.cfg.Personas.Names() {
			if id, ok := existing[name]; ok {
				ids[name] = id
				continue
			}
			persona, _ := p.cfg.Personas.ByName(name)
			id, err := p.client.CreatePersona(ctx, res.PageID, name, persona.PictureURL)
			if err != nil {
				step.Err = fmt.Errorf("create persona %s on page %s: %w", name, res.PageID, err)
				return step
			}
			if id == "" {
				slog.WarnContext(ctx, "Persona was not created", "page_id", res.PageID, "name", name)
				continue
			}
			ids[name] = id
		}
	}
	return step
}

type messengerProfile struct {
	GetStarted     getStarted       `json:"get_started"`
	Greeting       []localizedText  `json:"greeting"`
	PersistentMenu []persistentMenu `json:"persistent_menu"`
}

type getStarted struct {
	Payload string `json:"payload"`
}

type localizedText struct {
	Locale string `json:"locale"`
	Text   string `json:"text"`
}

type persistentMenu struct {
	Locale                string       `json:"locale"`
	ComposerInputDisabled bool         `json:"composer_input_disabled"`
	CallToActions         []menuAction `json:"call_to_actions"`
}

type menuAction struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Payload string `json:"payload,omitempty"`
	URL     string `json:"url,omitempty"`
}

// messengerProfile renders the Get Started button, greeting and persistent
// menu in every catalog language.
func (p *Provisioner) messengerProfile() messengerProfile {
	profile := messengerProfile{GetStarted: getStarted{Payload: PayloadGetStarted}}

	for _, tag := range supportedLanguages {
		printer := printerFor(tag)
		locale := platformLocales[tag]

		profile.Greeting = append(profile.Greeting, localizedText{Locale: locale, Text: printer.Sprintf(msgProfileGreeting)})

		actions := []menuAction{
			{Type: "postback", Title: printer.Sprintf(msgTopicOrder), Payload: handoffPayloadPrefix + strings.ToUpper(string(domain.RoleOrder))},
			{Type: "postback", Title: printer.Sprintf(msgTopicCare), Payload: handoffPayloadPrefix + strings.ToUpper(string(domain.RoleCare))},
		}
		if p.cfg.ShopURL != "" {
			actions = append(actions, menuAction{Type: "web_url", Title: printer.Sprintf(msgTopicShop), URL: p.cfg.ShopURL})
		}
		profile.PersistentMenu = append(profile.PersistentMenu, persistentMenu{Locale: locale, CallToActions: actions})
	}
	return profile
}
