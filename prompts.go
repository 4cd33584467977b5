package bustime

const (
	FollowUpPrompt          = "Would you like to do anything else?"
	FollowUpPromptShort     = "What else?"
	FollowUpRoutePrompt     = "What route would you like to add to this stop?"
	FollowUpStopPrompt      = "What stop number would you like to add?"
	FollowUpDirectionPrompt = "Is this stop inbound or outbound?"
	FollowUpStopNamePrompt  = "What name would you like to give this stop?"
	FollowUpYesNoPrompt     = "Is that correct?"

	RepromptAddRoute   = "I did not quite get that. Would you like to add a specific route?"
	RepromptAddStop    = "I did not quite get that. Would you like to add a specific stop?"
	RepromptGetRoute   = "I did not quite get that. Would you like to ask for a specific route?"
	RepromptGetSummary = "I did not quite get that. Would you like to get a summary?"
	RepromptRepeat     = "I did not quite get that. Can you repeat that again?"
	RepromptTryAgain   = "Sorry, I did not understand that. Please try again."

	TryAgainPrompt = "Please try again."
	StopMessage    = "Goodbye."
	ErrorMessage   = "Sorry, I ran into an error. Please try again later."
	HelpMessage    = "You can ask for a summary of your saved stop, ask about a specific route, " +
		"or add a stop or a route. What would you like to do?"
)
