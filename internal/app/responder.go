package app

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/pscheid92/pagegate/internal/domain"
	"github.com/pscheid92/pagegate/internal/platform/locale"
)

// HandOffer hands a conversation to the persona playing a role.
type HandOffer interface {
	HandOff(ctx context.Context, psid string, role domain.PersonaRole, pageID string) error
}

const handoffPayloadPrefix = "HANDOFF_"

// Message keys.
const (
	msgGreeting     = "greeting"
	msgGreetingAnon = "greeting_anonymous"
	msgHandoff      = "handoff"
	msgHandoffAnon  = "handoff_anonymous"
	msgTopicShop    = "topic_shop"
	msgTopicOrder   = "topic_order"
	msgTopicBilling = "topic_billing"
	msgTopicCare    = "topic_care"

	msgProfileGreeting = "profile_greeting"
)

var supportedLanguages = []language.Tag{language.English, language.German, language.French, language.Spanish}

var responderCatalog = func() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	set := func(tag language.Tag, key, msg string) {
		if err := b.SetString(tag, key, msg); err != nil {
			panic(fmt.Sprintf("responder catalog %s/%s: %v", tag, key, err))
		}
	}

	set(language.English, msgGreeting, "Hi %s! How can we help you today?")
	set(language.English, msgGreetingAnon, "Hi there! How can we help you today?")
	set(language.English, msgHandoff, "Connecting you with %s. Someone from our team will reply shortly.")
	set(language.English, msgHandoffAnon, "Connecting you with our team. Someone will reply shortly.")
	set(language.English, msgTopicShop, "Shop")
	set(language.English, msgTopicOrder, "My order")
	set(language.English, msgTopicBilling, "Billing")
	set(language.English, msgTopicCare, "Talk to a person")
	set(language.English, msgProfileGreeting, "Hi {{user_first_name}}! Tap Get Started and tell us what you are looking for.")

	set(language.German, msgGreeting, "Hallo %s! Wie können wir dir heute helfen?")
	set(language.German, msgGreetingAnon, "Hallo! Wie können wir dir heute helfen?")
	set(language.German, msgHandoff, "Wir verbinden dich mit %s. Jemand aus unserem Team meldet sich gleich.")
	set(language.German, msgHandoffAnon, "Wir verbinden dich mit unserem Team. Jemand meldet sich gleich.")
	set(language.German, msgTopicShop, "Shop")
	set(language.German, msgTopicOrder, "Meine Bestellung")
	set(language.German, msgTopicBilling, "Rechnung")
	set(language.German, msgTopicCare, "Mit einer Person sprechen")
	set(language.German, msgProfileGreeting, "Hallo {{user_first_name}}! Tippe auf Los geht's und sag uns, wonach du suchst.")

	set(language.French, msgGreeting, "Bonjour %s ! Comment pouvons-nous vous aider ?")
	set(language.French, msgGreetingAnon, "Bonjour ! Comment pouvons-nous vous aider ?")
	set(language.French, msgHandoff, "Nous vous mettons en relation avec %s. Un membre de notre équipe va vous répondre.")
	set(language.French, msgHandoffAnon, "Nous vous mettons en relation avec notre équipe. Quelqu'un va vous répondre.")
	set(language.French, msgTopicShop, "Boutique")
	set(language.French, msgTopicOrder, "Ma commande")
	set(language.French, msgTopicBilling, "Facturation")
	set(language.French, msgTopicCare, "Parler à quelqu'un")
	set(language.French, msgProfileGreeting, "Bonjour {{user_first_name}} ! Appuyez sur Démarrer et dites-nous ce que vous cherchez.")

	set(language.Spanish, msgGreeting, "¡Hola %s! ¿Cómo podemos ayudarte hoy?")
	set(language.Spanish, msgGreetingAnon, "¡Hola! ¿Cómo podemos ayudarte hoy?")
	set(language.Spanish, msgHandoff, "Te estamos conectando con %s. Alguien de nuestro equipo te responderá en breve.")
	set(language.Spanish, msgHandoffAnon, "Te estamos conectando con nuestro equipo. Alguien te responderá en breve.")
	set(language.Spanish, msgTopicShop, "Tienda")
	set(language.Spanish, msgTopicOrder, "Mi pedido")
	set(language.Spanish, msgTopicBilling, "Facturación")
	set(language.Spanish, msgTopicCare, "Hablar con una persona")
	set(language.Spanish, msgProfileGreeting, "¡Hola {{user_first_name}}! Toca Empezar y cuéntanos qué estás buscando.")

	return b
}()

var responderMatcher = language.NewMatcher(supportedLanguages)

// keywords route free text to a persona role. Checked in order against whole
// words only.
var keywords = []struct {
	role  domain.PersonaRole
	words []string
}{
	{domain.RoleCare, []string{"agent", "human", "person", "someone"}},
	{domain.RoleReturns, []string{"return", "returns", "refund", "refunds", "exchange"}},
	{domain.RoleOrder, []string{"order", "orders", "shipping", "tracking", "delivery"}},
	{domain.RoleBilling, []string{"billing", "invoice", "payment", "charge", "charged"}},
	{domain.RoleStock, []string{"stock", "available", "availability", "size"}},
	{domain.RoleSales, []string{"buy", "price", "discount", "sale"}},
}

// Responder is the default message handler. It greets senders in their
// language, offers topics as quick replies and hands the conversation to
// the matching persona once a topic is chosen.
type Responder struct {
	sender   domain.MessageSender
	handoff  HandOffer
	personas *domain.PersonaRegistry
	fold     cases.Caser
}

var _ domain.MessageHandler = (*Responder)(nil)

func NewResponder(sender domain.MessageSender, handoff HandOffer, personas *domain.PersonaRegistry) *Responder {
	return &Responder{
		sender:   sender,
		handoff:  handoff,
		personas: personas,
		fold:     cases.Fold(),
	}
}

func (r *Responder) HandleMessage(ctx context.Context, session *domain.Session, event *domain.MessagingEvent) error {
	p := printerFor(locale.FromContext(ctx))
	pageID := event.PageID()
	recipient := domain.Recipient{ID: event.Sender.ID}

	if role, ok := r.requestedRole(event); ok {
		persona, _ := r.personas.ForRole(role)
		text := p.Sprintf(msgHandoffAnon)
		if persona.Name != "" {
			text = p.Sprintf(msgHandoff, persona.Name)
		}

		err := r.sender.SendMessage(ctx, domain.OutgoingMessage{
			Recipient:     recipient,
			MessagingType: "RESPONSE",
			Message:       &domain.OutgoingContent{Text: text},
			PersonaID:     persona.ID,
		}, pageID)
		if err != nil {
			return fmt.Errorf("send handoff notice: %w", err)
		}
		return r.handoff.HandOff(ctx, event.Sender.ID, role, pageID)
	}

	greeting := p.Sprintf(msgGreetingAnon)
	if profile := session.Profile(); profile != nil && profile.FirstName != "" {
		greeting = p.Sprintf(msgGreeting, profile.FirstName)
	}

	err := r.sender.SendMessage(ctx, domain.OutgoingMessage{
		Recipient:     recipient,
		MessagingType: "RESPONSE",
		Message: &domain.OutgoingContent{
			Text: greeting,
			QuickReplies: []domain.OutgoingQuickReply{
				quickReply(p, msgTopicShop, domain.RoleSales),
				quickReply(p, msgTopicOrder, domain.RoleOrder),
				quickReply(p, msgTopicBilling, domain.RoleBilling),
				quickReply(p, msgTopicCare, domain.RoleCare),
			},
		},
	}, pageID)
	if err != nil {
		return fmt.Errorf("send greeting: %w", err)
	}
	return nil
}

// requestedRole extracts a handoff request from a quick reply, a postback
// or, failing those, keywords in the message text.
func (r *Responder) requestedRole(event *domain.MessagingEvent) (domain.PersonaRole, bool) {
	var payload string
	switch {
	case event.Message != nil && event.Message.QuickReply != nil:
		payload = event.Message.QuickReply.Payload
	case event.Postback != nil:
		payload = event.Postback.Payload
	}
	if role, ok := strings.CutPrefix(payload, handoffPayloadPrefix); ok {
		return domain.PersonaRole(strings.ToLower(role)), true
	}

	if event.Message == nil || event.Message.Text == "" {
		return "", false
	}
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(r.fold.String(event.Message.Text), isWordBreak) {
		words[w] = true
	}
	for _, kw := range keywords {
		for _, w := range kw.words {
			if words[w] {
				return kw.role, true
			}
		}
	}
	return "", false
}

func isWordBreak(c rune) bool {
	return !unicode.IsLetter(c)
}

func quickReply(p *message.Printer, key string, role domain.PersonaRole) domain.OutgoingQuickReply {
	return domain.OutgoingQuickReply{
		ContentType: "text",
		Title:       p.Sprintf(key),
		Payload:     handoffPayloadPrefix + strings.ToUpper(string(role)),
	}
}

func printerFor(tag language.Tag) *message.Printer {
	_, idx, _ := responderMatcher.Match(tag)
	return message.NewPrinter(supportedLanguages[idx], message.Catalog(responderCatalog))
}
