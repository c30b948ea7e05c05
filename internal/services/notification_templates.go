package services

import "html/template"

type notificationTemplates struct {
	KillSwitchEngaged    *template.Template
	KillSwitchDisengaged *template.Template
	OverrideRequested    *template.Template
	OverrideResolved     *template.Template
}

type killSwitchEmailData struct {
	VehicleName string
	VehicleID   string
	Reason      string
	Timestamp   string
}

type overrideEmailData struct {
	RequestID string
	ReportID  string
	Reason    string
	Urgency   string
	ExpiresAt string
	Verdict   string
}

const killSwitchEngagedTmpl = `
<html>
<body>
	<h2>Vehicle Immobilized</h2>
	<p>Vehicle <strong>{{.VehicleName}}</strong> ({{.VehicleID}}) has been immobilized.</p>
	<p><strong>Reason:</strong> {{.Reason}}</p>
	<p><strong>Time:</strong> {{.Timestamp}}</p>
	<p>The kill switch disengages automatically once the driver completes the
	accident report, or sooner via supervisor override.</p>
</body>
</html>`

const killSwitchDisengagedTmpl = `
<html>
<body>
	<h2>Vehicle Released</h2>
	<p>Vehicle <strong>{{.VehicleName}}</strong> ({{.VehicleID}}) has been released.</p>
	<p><strong>Reason:</strong> {{.Reason}}</p>
	<p><strong>Time:</strong> {{.Timestamp}}</p>
</body>
</html>`

const overrideRequestedTmpl = `
<html>
<body>
	<h2>Supervisor Override Requested</h2>
	<p>An override was requested for report <strong>{{.ReportID}}</strong>.</p>
	<p><strong>Urgency:</strong> {{.Urgency}}</p>
	<p><strong>Reason:</strong> {{.Reason}}</p>
	<p><strong>Expires:</strong> {{.ExpiresAt}}</p>
	<p>Request ID: {{.RequestID}}</p>
</body>
</html>`

const overrideResolvedTmpl = `
<html>
<body>
	<h2>Supervisor Override {{.Verdict}}</h2>
	<p>The override request for report <strong>{{.ReportID}}</strong> was {{.Verdict}}.</p>
	<p><strong>Original reason:</strong> {{.Reason}}</p>
	<p>Request ID: {{.RequestID}}</p>
</body>
</html>`

func loadNotificationTemplates() (*notificationTemplates, error) {
	engaged, err := template.New("kill_switch_engaged").Parse(killSwitchEngagedTmpl)
	if err != nil {
		return nil, err
	}

	disengaged, err := template.New("kill_switch_disengaged").Parse(killSwitchDisengagedTmpl)
	if err != nil {
		return nil, err
	}

	requested, err := template.New("override_requested").Parse(overrideRequestedTmpl)
	if err != nil {
		return nil, err
	}

	resolved, err := template.New("override_resolved").Parse(overrideResolvedTmpl)
	if err != nil {
		return nil, err
	}

	return &notificationTemplates{
		KillSwitchEngaged:    engaged,
		KillSwitchDisengaged: disengaged,
		OverrideRequested:    requested,
		OverrideResolved:     resolved,
	}, nil
}
