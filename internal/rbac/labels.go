package rbac

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// DefaultLocale is the locale denial messages are written in unless
// configured otherwise.
const DefaultLocale = "pt-BR"

const (
	keyUnauthenticated = "msg.unauthenticated"
	keyAdminOnly       = "msg.admin_only"
	keyDenied          = "msg.denied"
	keyNotMember       = "msg.not_member"
	keyDeniedAny       = "msg.denied_any"
)

var supportedLocales = []language.Tag{language.BrazilianPortuguese, language.English}

var translations = map[language.Tag]map[string]string{
	language.BrazilianPortuguese: {
		keyUnauthenticated: "É necessário estar autenticado para acessar este recurso",
		keyAdminOnly:       "Apenas administradores podem acessar este recurso",
		keyDenied:          "Você não tem permissão para %s %s",
		keyNotMember:       "Você não é membro deste projeto",
		keyDeniedAny:       "Você não tem permissão para acessar este recurso",

		"action.create": "criar",
		"action.read":   "visualizar",
		"action.update": "editar",
		"action.delete": "excluir",

		"resource.clientes":            "clientes",
		"resource.empresas":            "empresas",
		"resource.localidades":         "localidades",
		"resource.projetos":            "projetos",
		"resource.coleta-processos":    "coletas de processos",
		"resource.catalogo":            "catálogo de processos",
		"resource.equipe":              "membros da equipe",
		"resource.partes-interessadas": "partes interessadas",
		"resource.usuarios":            "usuários",
		"resource.configuracoes":       "configurações",
		"resource.organizacoes":        "organizações",
		"resource.sites":               "sites",
		"resource.stakeholders":        "stakeholders",
		"resource.descricoes":          "descrições",
		"resource.processos":           "processos",
		"resource.relatorios":          "relatórios",
	},
	language.English: {
		keyUnauthenticated: "Authentication is required to access this resource",
		keyAdminOnly:       "Only administrators can access this resource",
		keyDenied:          "You do not have permission to %s %s",
		keyNotMember:       "You are not a member of this project",
		keyDeniedAny:       "You do not have permission to access this resource",

		"action.create": "create",
		"action.read":   "view",
		"action.update": "edit",
		"action.delete": "delete",

		"resource.clientes":            "clients",
		"resource.empresas":            "companies",
		"resource.localidades":         "sites",
		"resource.projetos":            "projects",
		"resource.coleta-processos":    "process collections",
		"resource.catalogo":            "process catalog",
		"resource.equipe":              "team members",
		"resource.partes-interessadas": "stakeholders",
		"resource.usuarios":            "users",
		"resource.configuracoes":       "settings",
		"resource.organizacoes":        "organizations",
		"resource.sites":               "sites",
		"resource.stakeholders":        "stakeholders",
		"resource.descricoes":          "descriptions",
		"resource.processos":           "processes",
		"resource.relatorios":          "reports",
	},
}

var labelCatalog = mustBuildCatalog()

func mustBuildCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.BrazilianPortuguese))
	for tag, msgs := range translations {
		for key, msg := range msgs {
			if err := b.SetString(tag, key, msg); err != nil {
				panic(fmt.Sprintf("rbac: building label catalog: %v", err))
			}
		}
	}
	return b
}

// Labels renders action and resource names and denial messages in one
// locale.
type Labels struct {
	tag     language.Tag
	printer *message.Printer
}

// NewLabels returns labels for the supported locale closest to locale.
// Unparseable input is an error; an unsupported but valid locale falls back
// to pt-BR.
func NewLabels(locale string) (*Labels, error) {
	requested, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("parsing locale %q: %w", locale, err)
	}
	_, idx, _ := language.NewMatcher(supportedLocales).Match(requested)
	tag := supportedLocales[idx]
	return &Labels{
		tag:     tag,
		printer: message.NewPrinter(tag, message.Catalog(labelCatalog)),
	}, nil
}

// DefaultLabels returns pt-BR labels.
func DefaultLabels() *Labels {
	l, _ := NewLabels(DefaultLocale)
	return l
}

// Locale returns the resolved locale.
func (l *Labels) Locale() string {
	return l.tag.String()
}

// Action returns the label for a, or a itself when none is known.
func (l *Labels) Action(a Action) string {
	return l.lookup("action."+string(a), string(a))
}

// Resource returns the label for resource, or resource itself when none is
// known.
func (l *Labels) Resource(resource string) string {
	return l.lookup("resource."+resource, resource)
}

// Denied is the message naming the blocked action and resource.
func (l *Labels) Denied(resource string, action Action) string {
	return l.printer.Sprintf(keyDenied, l.Action(action), l.Resource(resource))
}

// Unauthenticated is the message for requests without an identity.
func (l *Labels) Unauthenticated() string {
	return l.printer.Sprintf(keyUnauthenticated)
}

// AdminOnly is the message for non-admins hitting an admin route.
func (l *Labels) AdminOnly() string {
	return l.printer.Sprintf(keyAdminOnly)
}

// NotMember is the message for callers outside the requested project.
func (l *Labels) NotMember() string {
	return l.printer.Sprintf(keyNotMember)
}

// DeniedAny is the message when none of several accepted permissions is held.
func (l *Labels) DeniedAny() string {
	return l.printer.Sprintf(keyDeniedAny)
}

func (l *Labels) lookup(key, fallback string) string {
	if _, ok := translations[l.tag][key]; !ok {
		return fallback
	}
	return l.printer.Sprintf(key)
}
