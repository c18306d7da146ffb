package event

import "strings"

const (
	ServicePubSub            = "pubsub.googleapis.com"
	ServiceStorage           = "storage.googleapis.com"
	ServiceFirestore         = "firestore.googleapis.com"
	ServiceFirebaseAuth      = "firebaseauth.googleapis.com"
	ServiceFirebaseDB        = "firebasedatabase.googleapis.com"
	ServiceFirebaseConfig    = "firebaseremoteconfig.googleapis.com"
	ServiceFirebaseAnalytics = "firebaseanalytics.googleapis.com"

	PubSubPublishType = "google.pubsub.topic.publish"
	PubSubMessageType = "type.googleapis.com/google.pubsub.v1.PubsubMessage"
)

type typeMapping struct {
	cloudType string
	service   string
}

// backgroundTypes maps legacy event types to cloud event types. Several
// legacy aliases map onto the same cloud type.
var backgroundTypes = map[string]typeMapping{
	PubSubPublishType: {"google.cloud.pubsub.topic.v1.messagePublished", ServicePubSub},

	"google.storage.object.finalize":       {"google.cloud.storage.object.v1.finalized", ServiceStorage},
	"google.storage.object.delete":         {"google.cloud.storage.object.v1.deleted", ServiceStorage},
	"google.storage.object.archive":        {"google.cloud.storage.object.v1.archived", ServiceStorage},
	"google.storage.object.metadataUpdate": {"google.cloud.storage.object.v1.metadataUpdated", ServiceStorage},

	"providers/cloud.firestore/eventTypes/document.write":  {"google.cloud.firestore.document.v1.written", ServiceFirestore},
	"providers/cloud.firestore/eventTypes/document.create": {"google.cloud.firestore.document.v1.created", ServiceFirestore},
	"providers/cloud.firestore/eventTypes/document.update": {"google.cloud.firestore.document.v1.updated", ServiceFirestore},
	"providers/cloud.firestore/eventTypes/document.delete": {"google.cloud.firestore.document.v1.deleted", ServiceFirestore},

	"providers/firebase.auth/eventTypes/user.create": {"google.firebase.auth.user.v1.created", ServiceFirebaseAuth},
	"providers/firebase.auth/eventTypes/user.delete": {"google.firebase.auth.user.v1.deleted", ServiceFirebaseAuth},

	"providers/google.firebase.analytics/eventTypes/event.log": {"google.firebase.analytics.log.v1.written", ServiceFirebaseAnalytics},

	"providers/google.firebase.database/eventTypes/ref.create": {"google.firebase.database.ref.v1.created", ServiceFirebaseDB},
	"providers/google.firebase.database/eventTypes/ref.write":  {"google.firebase.database.ref.v1.written", ServiceFirebaseDB},
	"providers/google.firebase.database/eventTypes/ref.update": {"google.firebase.database.ref.v1.updated", ServiceFirebaseDB},
	"providers/google.firebase.database/eventTypes/ref.delete": {"google.firebase.database.ref.v1.deleted", ServiceFirebaseDB},

	"google.firebase.remoteconfig.update": {"google.firebase.remoteconfig.remoteConfig.v1.updated", ServiceFirebaseConfig},

	// legacy aliases
	"providers/cloud.pubsub/eventTypes/topic.publish":  {"google.cloud.pubsub.topic.v1.messagePublished", ServicePubSub},
	"providers/cloud.storage/eventTypes/object.change": {"google.cloud.storage.object.v1.finalized", ServiceStorage},
}

type reverseMapping struct {
	backgroundType string
	service        string
}

// cloudTypes is the inverse of backgroundTypes. Aliases are skipped so that
// the canonical legacy name wins.
var cloudTypes = map[string]reverseMapping{}

var legacyAliases = map[string]bool{
	"providers/cloud.pubsub/eventTypes/topic.publish":  true,
	"providers/cloud.storage/eventTypes/object.change": true,
}

func init() {
	for bt, m := range backgroundTypes {
		if legacyAliases[bt] {
			continue
		}
		cloudTypes[m.cloudType] = reverseMapping{backgroundType: bt, service: m.service}
	}
}

// subjectSplits lists, per service, the path segment where the resource name
// turns into the cloud event subject.
var subjectSplits = map[string]string{
	ServiceStorage:    "/objects/",
	ServiceFirestore:  "/documents/",
	ServiceFirebaseDB: "/refs/",
}

func splitResource(service, resource string) (source, subject string) {
	sep, ok := subjectSplits[service]
	if !ok {
		return resource, ""
	}
	i := strings.Index(resource, sep)
	if i < 0 {
		return resource, ""
	}
	return resource[:i], resource[i+1:]
}

func joinResource(service, source, subject string) string {
	if _, ok := subjectSplits[service]; !ok || subject == "" {
		return source
	}
	return source + "/" + subject
}
