package tray

import "fyne.io/fyne/v2"

// svgIcon is a dashed selection frame with a chat bubble in the corner.
const svgIcon = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 16 16" width="16" height="16">
  <rect x="1.5" y="2.5" width="9" height="7" fill="none" stroke="#0078d4" stroke-width="1.5" stroke-dasharray="2,1" opacity="0.8"/>
  <path d="M8 8.5h6.5a1 1 0 0 1 1 1v3.5a1 1 0 0 1-1 1H11l-2 1.5v-1.5H8a1 1 0 0 1-1-1V9.5a1 1 0 0 1 1-1z" fill="#333333"/>
  <circle cx="9.5" cy="11.3" r="0.6" fill="#ffffff"/>
  <circle cx="11.3" cy="11.3" r="0.6" fill="#ffffff"/>
  <circle cx="13.1" cy="11.3" r="0.6" fill="#ffffff"/>
</svg>`

// Icon is the tray and window icon.
var Icon fyne.Resource = fyne.NewStaticResource("screen-chat-llm.svg", []byte(svgIcon))
