package chat

import (
	"fmt"
	"strings"

	"agro-intake-be/pkg/questionnaire"
)

const (
	summaryNamedLimit = 3

	msgNothingExtracted   = "No he podido identificar datos del formulario en tu descripción. Prueba a darme más detalles sobre el proyecto."
	msgExtractionFailed   = "No he podido procesar tu descripción en este momento. Inténtalo de nuevo en unos segundos."
	msgExtractionProgress = "Sigo analizando tu descripción: %d de %d bloques procesados (%d%%)."
	msgNothingToComplete  = "No hay secciones aplicables que completar por ahora."
	msgProgressOverall    = "Llevas completado un %d%% del formulario (%d de %d preguntas en las secciones aplicables)."
	msgAllComplete        = "¡Has completado todas las secciones aplicables!"
	msgSuggestSection     = "La sección con menos avance es \"%s\" (%d%%). ¿Quieres ver qué preguntas faltan?"
	msgSectionDone        = "La sección \"%s\" no tiene preguntas pendientes."
	msgQuestionDone       = "La pregunta \"%s\" ya tiene respuesta."
	msgPendingHeader      = "Preguntas pendientes en \"%s\":"
	msgAskQuestion        = "Empecemos por esta: %s"
	msgHelpGeneric        = "Puedes describirme tu proyecto con tus propias palabras y rellenaré el formulario por ti. También puedes preguntarme \"¿cómo voy?\" para ver tu progreso."
	msgHelpQuestion       = "Sobre \"%s\": %s"
	msgHelpNoDetail       = "La pregunta \"%s\" no tiene ayuda adicional. Responde con el dato tal como lo conozcas."
	msgSectionCleared     = "He marcado la sección \"%s\" como no aplicable y he borrado %d respuestas."
)

// SummaryText phrases an extraction result: the count of filled fields and the first
// three of their descriptions, or a fixed fallback when nothing was filled.
func SummaryText(descriptions []string) string {
	n := len(descriptions)
	if n == 0 {
		return msgNothingExtracted
	}

	named := descriptions
	if n > summaryNamedLimit {
		named = descriptions[:summaryNamedLimit]
	}

	var sb strings.Builder
	if n == 1 {
		sb.WriteString("1 campo extraído, incluyendo ")
	} else {
		fmt.Fprintf(&sb, "%d campos extraídos, incluyendo ", n)
	}
	sb.WriteString(joinNames(named))
	if rest := n - len(named); rest > 0 {
		fmt.Fprintf(&sb, " y %d más", rest)
	}
	sb.WriteString(".")
	return sb.String()
}

func joinNames(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("\"%s\"", n)
	}
	return strings.Join(quoted, ", ")
}

// describe maps question ids to their descriptions, skipping unknown ids.
func describe(index *questionnaire.Index, ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if q, ok := index.Question(id); ok {
			out = append(out, q.Description)
		}
	}
	return out
}

// pendingList renders an enumerated list of questions.
func pendingList(title string, questions []questionnaire.Question) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, msgPendingHeader, title)
	for i, q := range questions {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, q.Description)
	}
	return sb.String()
}
