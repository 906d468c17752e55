package services

import "couple-games/models"

type promptDef struct {
	Text    string
	Options []string
	Kind    string
}

func wyr(a, b string) promptDef {
	return promptDef{Text: "Would you rather " + a + " or " + b + "?", Options: []string{a, b}}
}

func wyrES(a, b string) promptDef {
	return promptDef{Text: "¿Preferirías " + a + " o " + b + "?", Options: []string{a, b}}
}

func truth(text string) promptDef { return promptDef{Text: text, Kind: "truth"} }
func dare(text string) promptDef  { return promptDef{Text: text, Kind: "dare"} }

var agreeScale = []string{"Strongly agree", "Agree", "Disagree", "Strongly disagree"}

// catalog: variant → locale → tiers. Index positions must line up across
// locales; ids are derived from (variant, tier, index).
var catalog = map[models.GameType]map[string][][]promptDef{
	models.GameWouldYouRather: {
		"en": {
			{
				wyr("travel to the mountains", "travel to the beach"),
				wyr("cook dinner together", "order takeout"),
				wyr("have a movie night", "have a game night"),
				wyr("wake up early", "stay up late"),
				wyr("get a dog", "get a cat"),
				wyr("go to a concert", "go to a museum"),
				wyr("plan every detail of a trip", "improvise the whole trip"),
				wyr("receive a handwritten letter", "receive a surprise gift"),
				wyr("live in the city", "live in the countryside"),
				wyr("spend a rainy day reading", "spend a rainy day baking"),
			},
			{
				wyr("know every past argument we had", "know every future argument we will have"),
				wyr("move abroad together for a year", "buy a house near family"),
				wyr("share one phone forever", "share one social media account forever"),
				wyr("relive our first date", "skip ahead to our tenth anniversary"),
				wyr("always say what you think", "never say what you think"),
				wyr("have a huge wedding", "elope on a whim"),
				wyr("lose all our photos", "lose all our messages"),
				wyr("take a cooking class together", "take a dance class together"),
				wyr("spend holidays with my family", "spend holidays with your family"),
				wyr("have a partner who is always early", "have a partner who is always late"),
			},
		},
		"es": {
			{
				wyrES("viajar a las montañas", "viajar a la playa"),
				wyrES("cocinar juntos", "pedir comida a domicilio"),
				wyrES("tener una noche de películas", "tener una noche de juegos"),
				wyrES("madrugar", "trasnochar"),
				wyrES("tener un perro", "tener un gato"),
				wyrES("ir a un concierto", "ir a un museo"),
				wyrES("planear cada detalle de un viaje", "improvisar todo el viaje"),
				wyrES("recibir una carta escrita a mano", "recibir un regalo sorpresa"),
				wyrES("vivir en la ciudad", "vivir en el campo"),
				wyrES("pasar un día de lluvia leyendo", "pasar un día de lluvia horneando"),
			},
		},
	},
	models.GamePartnerTrivia: {
		"en": {
			{
				{Text: "What is my favorite season?", Options: []string{"Spring", "Summer", "Autumn", "Winter"}},
				{Text: "What do I order at a coffee shop?", Options: []string{"Espresso", "Latte", "Tea", "Hot chocolate"}},
				{Text: "Which superpower would I pick?", Options: []string{"Flying", "Invisibility", "Teleportation", "Mind reading"}},
				{Text: "What is my ideal weekend?", Options: []string{"Outdoors", "On the couch", "With friends", "Working on a project"}},
				{Text: "Which meal could I eat every day?", Options: []string{"Pizza", "Sushi", "Tacos", "Pasta"}},
				{Text: "How do I handle stress?", Options: []string{"Exercise", "Sleep", "Talk it out", "Keep busy"}},
				{Text: "What kind of movie do I pick?", Options: []string{"Comedy", "Horror", "Drama", "Action"}},
				{Text: "Where would I go on a dream trip?", Options: []string{"Japan", "Italy", "Iceland", "Brazil"}},
				{Text: "What is my love language?", Options: []string{"Words", "Touch", "Gifts", "Quality time"}},
				{Text: "Which chore do I dislike most?", Options: []string{"Dishes", "Laundry", "Vacuuming", "Groceries"}},
			},
		},
	},
	models.GameCompatibilityQuiz: {
		"en": {
			{
				{Text: "Money should be shared in one account.", Options: agreeScale},
				{Text: "Weekends are for rest, not plans.", Options: agreeScale},
				{Text: "It is fine to go to bed angry.", Options: agreeScale},
				{Text: "We should travel somewhere new every year.", Options: agreeScale},
				{Text: "Friends can stay over any time.", Options: agreeScale},
				{Text: "Household chores should be split evenly.", Options: agreeScale},
				{Text: "Phones do not belong at the dinner table.", Options: agreeScale},
				{Text: "Birthdays deserve a big celebration.", Options: agreeScale},
				{Text: "We should try a new hobby together.", Options: agreeScale},
				{Text: "Date night should happen every week.", Options: agreeScale},
			},
		},
	},
	models.GameTruthOrDare: {
		"en": {
			{
				truth("What was your first impression of me?"),
				dare("Send me a voice note singing our song."),
				truth("What is a small thing I do that you love?"),
				dare("Draw a portrait of me in one minute."),
				truth("When did you know you liked me?"),
				dare("Do your best impression of me."),
				truth("What is one thing you want us to try this year?"),
				dare("Write a two-line poem about our first date."),
				truth("What is your favorite memory of us?"),
				dare("Dance for thirty seconds to the next song that plays."),
			},
		},
	},
}
