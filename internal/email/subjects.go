package email

const (
	subjectWelcome                 = "Welcome to DriveAssist"
	subjectAppointmentBookedFmt    = "Booking request sent to %s"
	subjectAppointmentConfirmedFmt = "Appointment %s confirmed"
	subjectAppointmentRejectedFmt  = "Appointment %s was declined"
	subjectAppointmentCancelledFmt = "Appointment %s was cancelled"
	subjectAppointmentReminderFmt  = "Reminder: appointment %s is coming up"
	subjectLeadReceived            = "New service request in your area"
	subjectPurchaseReceiptFmt      = "Receipt for your %s credit purchase"
)
