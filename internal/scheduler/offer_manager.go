package scheduler

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/ngageoint/scale/internal/model"
)

// ResourceOffer is what a node currently offers to the scheduler through its agent.
type ResourceOffer struct {
	ID        string
	NodeID    int64
	AgentID   string
	Resources model.Resources
	// Received is when the agent reported the offered resources.
	Received time.Time
}

func (o *ResourceOffer) DeepCopy() *ResourceOffer {
	c := *o
	c.Resources = o.Resources.DeepCopy()
	return &c
}

// OfferManager holds at most one offer per node. An offer is replaced by the next one reported for its node, consumed
// by a scheduling pass that launches tasks on the node, or declined: discarded because its node was lost, or expired
// after going unused for the configured time. It is safe for concurrent use.
type OfferManager struct {
	mu     sync.Mutex
	offers *cache.Cache
	// Ids of offers being removed because they were used.
	consuming map[string]bool
	// Report time of the last consumed offer of each node. Offers reported before the agent could have accounted for
	// the tasks launched on the node are stale.
	lastConsumed map[int64]time.Time
	onDeclined   func(offer *ResourceOffer)
}

// NewOfferManager creates an offer manager whose offers expire after ttl. onDeclined, if not nil, is called with each
// offer that is discarded or expires.
func NewOfferManager(ttl time.Duration, onDeclined func(offer *ResourceOffer)) *OfferManager {
	m := &OfferManager{
		offers:       cache.New(ttl, ttl),
		consuming:    map[string]bool{},
		lastConsumed: map[int64]time.Time{},
		onDeclined:   onDeclined,
	}
	m.offers.OnEvicted(m.evicted)
	return m
}

func nodeKey(nodeID int64) string {
	return strconv.FormatInt(nodeID, 10)
}

// AddOffers stores the given offers, replacing any earlier offer from the same node. Offers reported no later than the
// node's last consumed offer are ignored. It returns the number of offers stored.
func (m *OfferManager) AddOffers(offers []*ResourceOffer) int {
	added := 0
	for _, offer := range offers {
		m.mu.Lock()
		last, consumed := m.lastConsumed[offer.NodeID]
		m.mu.Unlock()
		if consumed && !offer.Received.After(last) {
			continue
		}
		m.offers.SetDefault(nodeKey(offer.NodeID), offer.DeepCopy())
		added++
	}
	return added
}

// Offers returns copies of the current offers sorted by node id.
func (m *OfferManager) Offers() []*ResourceOffer {
	items := m.offers.Items()
	offers := make([]*ResourceOffer, 0, len(items))
	for _, item := range items {
		offers = append(offers, item.Object.(*ResourceOffer).DeepCopy())
	}
	sort.Slice(offers, func(i, j int) bool { return offers[i].NodeID < offers[j].NodeID })
	return offers
}

// ConsumeOffer removes an offer that tasks have been launched with. It returns false if the offer had already been
// replaced or removed.
func (m *OfferManager) ConsumeOffer(offer *ResourceOffer) bool {
	key := nodeKey(offer.NodeID)
	current, ok := m.offers.Get(key)
	if !ok || current.(*ResourceOffer).ID != offer.ID {
		return false
	}
	m.mu.Lock()
	m.consuming[offer.ID] = true
	if offer.Received.After(m.lastConsumed[offer.NodeID]) {
		m.lastConsumed[offer.NodeID] = offer.Received
	}
	m.mu.Unlock()
	m.offers.Delete(key)
	return true
}

// DeclineNodeOffer discards the offer of the given node, if there is one.
func (m *OfferManager) DeclineNodeOffer(nodeID int64) {
	m.offers.Delete(nodeKey(nodeID))
}

// ExpireOffers declines every offer that has outlived its time to live.
func (m *OfferManager) ExpireOffers() {
	m.offers.DeleteExpired()
}

func (m *OfferManager) Count() int {
	return m.offers.ItemCount()
}

func (m *OfferManager) evicted(_ string, value interface{}) {
	offer := value.(*ResourceOffer)
	m.mu.Lock()
	consumed := m.consuming[offer.ID]
	delete(m.consuming, offer.ID)
	m.mu.Unlock()
	if !consumed && m.onDeclined != nil {
		m.onDeclined(offer)
	}
}
