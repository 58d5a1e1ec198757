package session

const (
	DefaultGreeting = "Hello, I am Soul-Bot. Would you like a kundali or horoscope reading?"
	DefaultFarewell = "Alright, ending the conversation now. Goodbye!"
	DefaultApology  = "I'm sorry, I couldn't process that just now. Could you say it again?"
	DefaultSubject  = "Your Astro Reading"

	defaultQueueSize = 32
	// Follow-up events produced while handling one inbound event are capped so a
	// model that keeps calling functions cannot loop forever.
	maxFollowUps = 8
)

// Options are the fixed texts and knobs of a session.
type Options struct {
	SystemPrompt    string
	Greeting        string
	Farewell        string
	Apology         string
	Subject         string
	ContactOverride string
	QueueSize       int
}

// DefaultOptions returns the stock texts.
func DefaultOptions() Options {
	return Options{
		Greeting:  DefaultGreeting,
		Farewell:  DefaultFarewell,
		Apology:   DefaultApology,
		Subject:   DefaultSubject,
		QueueSize: defaultQueueSize,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Farewell == "" {
		o.Farewell = d.Farewell
	}
	if o.Apology == "" {
		o.Apology = d.Apology
	}
	if o.Subject == "" {
		o.Subject = d.Subject
	}
	if o.QueueSize <= 0 {
		o.QueueSize = d.QueueSize
	}
	return o
}
