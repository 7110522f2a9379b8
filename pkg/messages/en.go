package messages

const enFallback = "Gentle reminder..."

// EnMessages is the English catalog.
var EnMessages = map[Category][]string{
	Urgent: {
		"Has this task gone mouldy? Do it now!",
		"You promised this was done. I am very disappointed.",
		"Finish it or I will haunt you forever!",
		"The deadline has passed. Have some self-respect!",
		"Hello? Task police? Arrest this slacker!",
		"How long do you want me to keep reminding you?",
		"So many promises, so many broken ones...",
	},
	Warning: {
		"Can you smell the deadline burning yet?",
		"30 minutes until it all falls apart. Watch out!",
		"Hurry up, I am watching you.",
		"Don't wait for the water to reach your feet. Jump!",
		"Almost late. Do it while it's hot!",
		"Careful, time waits for no one (and neither do I).",
	},
}
