package mail

import (
	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// supportedLocales lists the languages the report email is translated into.
// The first entry is the fallback.
var supportedLocales = []language.Tag{
	language.English,
	language.Spanish,
	language.French,
}

const (
	msgSubjectWelcome  = "Welcome to Breach Monitor"
	msgSubjectBreaches = "Breach Monitor found your email in %d known data breaches"
	msgMonitoring      = "We are now monitoring %s for new data breaches."
	msgNoBreaches      = "Good news: your email address was not found in any known data breaches."
	msgBreachesIntro   = "Your email address appeared in the following breaches:"
	msgBreachLine      = "%s (%d affected accounts)"
	msgReportDate      = "Report date: %s"
	msgCTA             = "See your full report: %s"
	msgUnsubscribe     = "Unsubscribe from these alerts: %s"
)

func init() {
	message.Set(language.English, msgSubjectBreaches,
		plural.Selectf(1, "",
			plural.One, "Breach Monitor found your email in 1 known data breach",
			plural.Other, "Breach Monitor found your email in %[1]d known data breaches"))

	for key, value := range map[string]string{
		msgSubjectWelcome: "Te damos la bienvenida a Breach Monitor",
		msgMonitoring:     "Ahora vigilamos %s en busca de nuevas filtraciones de datos.",
		msgNoBreaches:     "Buenas noticias: tu dirección de correo no apareció en ninguna filtración conocida.",
		msgBreachesIntro:  "Tu dirección de correo apareció en las siguientes filtraciones:",
		msgBreachLine:     "%s (%d cuentas afectadas)",
		msgReportDate:     "Fecha del informe: %s",
		msgCTA:            "Consulta tu informe completo: %s",
		msgUnsubscribe:    "Cancela estas alertas: %s",
	} {
		message.SetString(language.Spanish, key, value)
	}
	message.Set(language.Spanish, msgSubjectBreaches,
		plural.Selectf(1, "",
			plural.One, "Breach Monitor encontró tu correo en 1 filtración de datos conocida",
			plural.Other, "Breach Monitor encontró tu correo en %[1]d filtraciones de datos conocidas"))

	for key, value := range map[string]string{
		msgSubjectWelcome: "Bienvenue sur Breach Monitor",
		msgMonitoring:     "Nous surveillons désormais %s pour détecter de nouvelles fuites de données.",
		msgNoBreaches:     "Bonne nouvelle : votre adresse e-mail n'apparaît dans aucune fuite de données connue.",
		msgBreachesIntro:  "Votre adresse e-mail est apparue dans les fuites suivantes :",
		msgBreachLine:     "%s (%d comptes concernés)",
		msgReportDate:     "Date du rapport : %s",
		msgCTA:            "Consultez votre rapport complet : %s",
		msgUnsubscribe:    "Se désabonner de ces alertes : %s",
	} {
		message.SetString(language.French, key, value)
	}
	message.Set(language.French, msgSubjectBreaches,
		plural.Selectf(1, "",
			plural.One, "Breach Monitor a trouvé votre e-mail dans 1 fuite de données connue",
			plural.Other, "Breach Monitor a trouvé votre e-mail dans %[1]d fuites de données connues"))
}
